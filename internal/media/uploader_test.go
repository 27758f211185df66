package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	var gotPreset, gotPublicID, gotFilename string
	var gotData []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotPreset = r.FormValue("upload_preset")
		gotPublicID = r.FormValue("public_id")
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		gotFilename = hdr.Filename
		gotData, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"secure_url":"https://img.example/book-1.png"}`))
	}))
	defer srv.Close()

	u := NewUploader(Config{URL: srv.URL, UploadPreset: "unsigned"}, nil)
	url, err := u.Upload(context.Background(), Image{ContentType: "image/png", Data: []byte("png")}, "book-1")
	require.NoError(t, err)

	assert.Equal(t, "https://img.example/book-1.png", url)
	assert.Equal(t, "unsigned", gotPreset)
	assert.Equal(t, "book-1", gotPublicID)
	assert.Equal(t, "book-1.png", gotFilename)
	assert.Equal(t, []byte("png"), gotData)
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"host error message", http.StatusBadRequest, `{"error":{"message":"Upload preset not found"}}`, "Upload preset not found"},
		{"plain failure", http.StatusInternalServerError, `oops`, "500"},
		{"no secure url", http.StatusOK, `{"url":"http://img.example/x"}`, "no secure url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			u := NewUploader(Config{URL: srv.URL}, nil)
			_, err := u.Upload(context.Background(), Image{Data: []byte("x")}, "note-1")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestUploadPreconditions(t *testing.T) {
	_, err := NewUploader(Config{}, nil).Upload(context.Background(), Image{Data: []byte("x")}, "id")
	assert.ErrorIs(t, err, ErrNotConfigured)

	u := NewUploader(Config{URL: "http://unused", MaxBytes: 2}, nil)
	_, err = u.Upload(context.Background(), Image{}, "id")
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, err = u.Upload(context.Background(), Image{Data: []byte("abc")}, "id")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestImageExt(t *testing.T) {
	assert.Equal(t, "jpeg", Image{ContentType: "image/jpeg"}.Ext())
	assert.Equal(t, "png", Image{Filename: "cover.PNG"}.Ext())
	assert.Equal(t, "jpg", Image{}.Ext())
}
