package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

type errorBody struct {
	Error *apperrors.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its HTTP status. Internal and upstream causes are
// logged and never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err, "internal error")
	}

	switch appErr.Code {
	case apperrors.CodeInternal:
		log.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	case apperrors.CodeUpstream:
		log.Warn("upstream failure",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}

	writeJSON(w, appErr.HTTPStatus(), errorBody{Error: &apperrors.Error{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

// decodeJSON reads one JSON object into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.Validation("request body too large")
		case errors.Is(err, io.EOF):
			return apperrors.Validation("request body is empty")
		default:
			return apperrors.Validationf("invalid JSON body: %v", err)
		}
	}
	return nil
}

// identity returns the caller set by mw.RequireAuth.
func identity(r *http.Request) domain.Identity {
	ident, _ := auth.IdentityFrom(r.Context())
	return ident
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
