package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Mode       string `json:"mode,omitempty"`
	Source     string `json:"source,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	OpenViews  *int   `json:"open_views,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, updatedAt := d.Catalog.Info()
		lastReload := "never"
		if !updatedAt.IsZero() {
			lastReload = updatedAt.Format("2006-01-02 15:04:05")
		}
		views := d.Views.Count()

		components := map[string]componentStatus{
			"store": checkStore(r.Context(), d),
			"catalog": {
				OK:         true,
				Source:     source,
				LastReload: lastReload,
			},
			"views": {
				OK:        true,
				OpenViews: &views,
			},
			"uploads": uploadStatus(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if store, ok := components["store"]; ok && !store.OK {
		return "critical" // no listings can be read or written
	}
	if uploads, ok := components["uploads"]; ok && !uploads.OK {
		return "degraded"
	}
	return "operational"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{OK: true, Mode: d.StoreBackend, Impact: "data-lost-on-restart"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{OK: false, Mode: d.StoreBackend, Error: "timeout"}
	}
	return componentStatus{OK: true, Mode: d.StoreBackend}
}

func uploadStatus(d deps.Deps) componentStatus {
	if !d.ImageUploads {
		return componentStatus{OK: false, Impact: "listings-without-images"}
	}
	return componentStatus{OK: true}
}
