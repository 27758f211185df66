package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/config"
	"github.com/MrSnakeDoc/unilend/internal/docstore/memory"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/media"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

var testHasher = auth.Hasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, tweak func(*deps.Deps)) *httptest.Server {
	t.Helper()
	log := logger.Nop()
	store := memory.New()
	catalog := service.NewCatalog()
	views := service.NewViewRegistry(store, service.ViewConfig{}, log)
	t.Cleanup(views.CloseAll)

	d := deps.Deps{
		Logger:        log,
		StartTime:     time.Now(),
		TimeNow:       time.Now,
		AuthRateLimit: 1000,
		AuthRateBurst: 1000,
		StoreBackend:  config.BackendMemory,
		Listings:      service.NewListingService(store, media.NewUploader(media.Config{}, log), catalog, log),
		Users: service.NewUserService(store, auth.NewMemorySessions(), service.UserConfig{
			Hasher: testHasher,
		}, log),
		Views:          views,
		Catalog:        catalog,
		MaxUploadBytes: 1 << 20,
		SSEHeartbeat:   time.Hour,
	}
	if tweak != nil {
		tweak(&d)
	}

	srv := New(&config.Config{ListenPort: ":0"}, log, d)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func signUpAndIn(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	resp := do(t, ts, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":            email,
		"password":         "correct horse",
		"confirm_password": "correct horse",
		"first_name":       "Asha",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    email,
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess struct {
		Token string `json:"token"`
	}
	decode(t, resp, &sess)
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

type apiError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := do(t, ts, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/readyz", "", nil).StatusCode)

	down := newTestServer(t, func(d *deps.Deps) { d.Store = failingPinger{} })
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/readyz", "", nil).StatusCode)
}

func TestOpsRestrictedByCIDR(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })
	assert.Equal(t, http.StatusForbidden, do(t, ts, http.MethodGet, "/readyz", "", nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/healthz", "", nil).StatusCode)
}

func TestReloadWithoutCatalogFile(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodPost, "/reload", "", nil).StatusCode)
}

func TestProfileRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signUpAndIn(t, ts, "Asha@Campus.edu")

	resp := do(t, ts, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
	}
	decode(t, resp, &user)
	assert.Equal(t, "asha@campus.edu", user.Email)
	assert.Equal(t, "Asha", user.FirstName)

	resp = do(t, ts, http.MethodPost, "/api/auth/signout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, ts, http.MethodGet, "/api/profile", token, nil).StatusCode)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/profile", "/api/catalog", "/api/views/uploads/stream"} {
		resp := do(t, ts, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer", path)
	}
}

func TestSignUpValidationDetails(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := do(t, ts, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":            "not-an-email",
		"password":         "short",
		"confirm_password": "other",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body apiError
	decode(t, resp, &body)
	assert.Equal(t, "VALIDATION", body.Error.Code)
	assert.NotEmpty(t, body.Error.Details)
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) {
		d.AuthRateLimit = 0.001
		d.AuthRateBurst = 2
	})
	creds := map[string]string{"email": "x@campus.edu", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, do(t, ts, http.MethodPost, "/api/auth/signin", "", creds).StatusCode)
	}
	resp := do(t, ts, http.MethodPost, "/api/auth/signin", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestCreateAndGetBook(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signUpAndIn(t, ts, "asha@campus.edu")

	resp := do(t, ts, http.MethodPost, "/api/listings/books", token, map[string]string{
		"title":       "Signals and Systems",
		"author":      "Oppenheim",
		"description": "Second edition, some notes in margins",
		"condition":   "Good",
		"tags":        "ECE, signals",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var item struct {
		ID         string   `json:"id"`
		Origin     string   `json:"origin"`
		UploadedBy string   `json:"uploaded_by"`
		Tags       []string `json:"tags"`
	}
	decode(t, resp, &item)
	assert.Equal(t, "book", item.Origin)
	assert.Equal(t, "asha@campus.edu", item.UploadedBy)
	assert.Equal(t, []string{"ece", "signals"}, item.Tags)

	resp = do(t, ts, http.MethodGet, "/api/listings/book/"+item.ID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/api/listings/book/missing", token, nil).StatusCode)
}

func TestImageRejectedWithoutUploader(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signUpAndIn(t, ts, "asha@campus.edu")

	var buf bytes.Buffer
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"title\"\r\n\r\nOptics\r\n")
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"author\"\r\n\r\nHecht\r\n")
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"description\"\r\n\r\nclean copy\r\n")
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"image\"; filename=\"c.png\"\r\nContent-Type: image/png\r\n\r\n")
	buf.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	buf.WriteString("\r\n--b--\r\n")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/listings/books", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type sseEvent struct {
	name string
	data []byte
}

// readEvents parses the stream into events until it ends.
func readEvents(body io.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(body)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = []byte(strings.TrimPrefix(line, "data: "))
			case line == "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

type snapshot struct {
	ViewID string `json:"view_id"`
	Loaded bool   `json:"loaded"`
	Items  []struct {
		ID          string   `json:"id"`
		FavoritedBy []string `json:"favorited_by"`
	} `json:"items"`
}

func nextEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream ended while waiting for %s", name)
			if ev.name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
		}
	}
}

func TestViewStreamLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signUpAndIn(t, ts, "asha@campus.edu")

	resp := do(t, ts, http.MethodPost, "/api/listings/books", token, map[string]string{
		"title": "Optics", "author": "Hecht", "description": "clean copy", "tags": "physics",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var book struct {
		ID string `json:"id"`
	}
	decode(t, resp, &book)

	stream := do(t, ts, http.MethodGet, "/api/views/uploads/stream", token, nil)
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
	events := readEvents(stream.Body)

	var connected struct {
		ViewID string `json:"view_id"`
	}
	require.NoError(t, json.Unmarshal(nextEvent(t, events, "connected").data, &connected))
	viewID := connected.ViewID
	require.NotEmpty(t, viewID)

	// Wait until both sources have delivered the upload.
	var snap snapshot
	for !snap.Loaded || len(snap.Items) == 0 {
		require.NoError(t, json.Unmarshal(nextEvent(t, events, "snapshot").data, &snap))
	}
	assert.Equal(t, book.ID, snap.Items[0].ID)

	// A second stream on the same view is refused.
	dup := do(t, ts, http.MethodGet, "/api/views/uploads/stream?view="+viewID, token, nil)
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	base := "/api/views/" + viewID
	resp = do(t, ts, http.MethodGet, base+"?tag=physics", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var filtered snapshot
	decode(t, resp, &filtered)
	assert.Len(t, filtered.Items, 1)

	resp = do(t, ts, http.MethodPost, base+"/items/book/"+book.ID+"/favorite", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPut, base+"/items/book/"+book.ID+"/status", token, map[string]any{"status": "sold"})
	require.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	var body apiError
	decode(t, resp, &body)
	assert.Equal(t, "book/"+book.ID, body.Error.Details["key"])
	assert.Equal(t, "sold", body.Error.Details["action"])

	resp = do(t, ts, http.MethodPut, base+"/items/book/"+book.ID+"/status", token, map[string]any{"status": "sold", "confirm": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Deleted bool `json:"deleted"`
	}
	decode(t, resp, &status)
	assert.True(t, status.Deleted)
	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/api/listings/book/"+book.ID, token, nil).StatusCode)

	assert.Equal(t, http.StatusNoContent, do(t, ts, http.MethodDelete, base, token, nil).StatusCode)
	nextEvent(t, events, "closed")
}

func TestViewsAreOwnerScoped(t *testing.T) {
	ts := newTestServer(t, nil)
	asha := signUpAndIn(t, ts, "asha@campus.edu")
	ravi := signUpAndIn(t, ts, "ravi@campus.edu")

	stream := do(t, ts, http.MethodGet, "/api/views/browse/stream", asha, nil)
	require.Equal(t, http.StatusOK, stream.StatusCode)
	var connected struct {
		ViewID string `json:"view_id"`
	}
	require.NoError(t, json.Unmarshal(nextEvent(t, readEvents(stream.Body), "connected").data, &connected))

	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/api/views/"+connected.ViewID, ravi, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodGet, "/api/views/everything/stream", ravi, nil).StatusCode)
}
