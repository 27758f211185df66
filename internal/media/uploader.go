// Package media uploads listing images to a Cloudinary-compatible image
// host: a multipart POST carrying the file, an unsigned upload preset and
// the caller's public id, answered with the hosted secure_url.
package media

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/utils"
)

var (
	ErrNotConfigured = errors.New("image upload is not configured")
	ErrEmptyImage    = errors.New("image is empty")
	ErrTooLarge      = errors.New("image exceeds the size limit")
)

// Image is an image received from a client.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Ext returns the image subtype ("jpeg", "png") used to name the upload.
func (i Image) Ext() string {
	if _, sub, ok := strings.Cut(i.ContentType, "/"); ok && sub != "" {
		return sub
	}
	if dot := strings.LastIndexByte(i.Filename, '.'); dot >= 0 && dot < len(i.Filename)-1 {
		return strings.ToLower(i.Filename[dot+1:])
	}
	return "jpg"
}

// Config points the uploader at the image host.
type Config struct {
	URL          string
	UploadPreset string
	Timeout      time.Duration
	MaxBytes     int64
}

// Uploader posts images to the configured endpoint.
type Uploader struct {
	cfg    Config
	client *http.Client
	log    logger.Logger
}

func NewUploader(cfg Config, log logger.Logger) *Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Uploader{cfg: cfg, client: newClient(cfg.Timeout), log: log}
}

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConnsPerHost: 4,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Enabled reports whether an upload endpoint is configured.
func (u *Uploader) Enabled() bool {
	return u.cfg.URL != ""
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends img under publicID and returns the hosted HTTPS URL.
func (u *Uploader) Upload(ctx context.Context, img Image, publicID string) (string, error) {
	if !u.Enabled() {
		return "", ErrNotConfigured
	}
	if len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	if u.cfg.MaxBytes > 0 && int64(len(img.Data)) > u.cfg.MaxBytes {
		return "", ErrTooLarge
	}

	body, contentType, err := encodeForm(img, publicID, u.cfg.UploadPreset)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	defer utils.Close(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	var out uploadResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode/100 != 2 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("image host returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", decodeErr)
	}
	if !strings.HasPrefix(out.SecureURL, "https://") {
		return "", fmt.Errorf("image host returned no secure url")
	}

	u.log.Debug("image uploaded",
		logger.String("public_id", publicID),
		logger.Int("bytes", len(img.Data)),
		logger.Duration("took", time.Since(start)))
	return out.SecureURL, nil
}

func encodeForm(img Image, publicID, preset string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	ext := img.Ext()
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/" + ext
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s.%s"`, publicID, ext))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to build upload form: %w", err)
	}

	if preset != "" {
		if err := w.WriteField("upload_preset", preset); err != nil {
			return nil, "", fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := w.WriteField("public_id", publicID); err != nil {
		return nil, "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build upload form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
