package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/media"
	"github.com/MrSnakeDoc/unilend/internal/service"
	"github.com/MrSnakeDoc/unilend/internal/utils"
)

// multipartOverhead is allowed on top of the image for the text fields.
const multipartOverhead = 64 << 10

func CreateBook(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.BookInput
		img, err := readListing(w, r, d, &in, func(form func(string) string) {
			in = service.BookInput{
				Title:       form("title"),
				Author:      form("author"),
				Description: form("description"),
				Edition:     form("edition"),
				Price:       form("price"),
				Condition:   form("condition"),
				Tags:        form("tags"),
			}
		})
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		item, err := d.Listings.CreateBook(r.Context(), identity(r), in, img)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func CreateNote(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.NoteInput
		img, err := readListing(w, r, d, &in, func(form func(string) string) {
			in = service.NoteInput{
				Title:       form("title"),
				Subject:     form("subject"),
				Semester:    form("semester"),
				Description: form("description"),
				Format:      form("format"),
				Price:       form("price"),
				FileURL:     form("file_url"),
				Tags:        form("tags"),
			}
		})
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		item, err := d.Listings.CreateNote(r.Context(), identity(r), in, img)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func GetListing(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin, err := domain.ParseOrigin(chi.URLParam(r, "origin"))
		if err != nil {
			writeError(w, r, d.Logger, apperrors.Validation(err.Error()))
			return
		}
		item, err := d.Listings.Get(r.Context(), origin, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// readListing decodes a JSON body into jsonDst, or a multipart form through
// fromForm. Multipart requests may carry the cover in the "image" part.
func readListing(w http.ResponseWriter, r *http.Request, d deps.Deps, jsonDst any, fromForm func(form func(string) string)) (*media.Image, error) {
	if !isMultipart(r) {
		return nil, decodeJSON(w, r, jsonDst)
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(d.MaxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Validation("image exceeds the size limit")
		}
		return nil, apperrors.Validationf("invalid multipart form: %v", err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	fromForm(r.FormValue)

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Validationf("invalid image part: %v", err)
	}
	defer utils.Close(file)

	data, err := io.ReadAll(io.LimitReader(file, d.MaxUploadBytes+1))
	if err != nil {
		return nil, apperrors.Validationf("failed to read image: %v", err)
	}
	if int64(len(data)) > d.MaxUploadBytes {
		return nil, apperrors.Validation("image exceeds the size limit")
	}
	if len(data) == 0 {
		return nil, apperrors.Validation("image is empty")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.Validationf("image must be an image, got %s", contentType)
	}
	return &media.Image{Filename: header.Filename, ContentType: contentType, Data: data}, nil
}
