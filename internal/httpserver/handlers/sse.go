package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// streamWriteWindow is how long one event may take to reach the client.
const streamWriteWindow = 60 * time.Second

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// startStream sets SSE headers and flushes them.
func startStream(w http.ResponseWriter) (*sseWriter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return &sseWriter{w: w, rc: rc}, nil
}

// send writes one event and flushes it, extending the write deadline so
// long-lived streams outlive the server's WriteTimeout.
func (s *sseWriter) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	// The deadline error is ignored: not every ResponseWriter supports it.
	_ = s.rc.SetWriteDeadline(time.Now().Add(streamWriteWindow))

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}
