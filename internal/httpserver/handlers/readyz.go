package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Readyz reports ready once the document store answers.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Store.Ping(ctx); err != nil {
				d.Logger.Warn("readiness check failed", logger.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Error: "store unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
