package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/mw"
)

// Streams are long-lived and registered without a timeout.
func init() { Register(registerViewStream) }

func registerViewStream(r chi.Router, d deps.Deps) {
	r.With(mw.RequireAuth(d.Users, d.Logger)).Get("/api/views/{kind}/stream", handlers.StreamView(d))
}

// View writes wait for the store's answer.
func init() { Register(registerViews, writeTimeout) }

func registerViews(r chi.Router, d deps.Deps) {
	authed := r.With(mw.RequireAuth(d.Users, d.Logger))
	authed.Get("/api/views/{viewID}", handlers.GetView(d))
	authed.Delete("/api/views/{viewID}", handlers.CloseView(d))
	authed.Post("/api/views/{viewID}/tag", handlers.SelectTag(d))
	authed.Post("/api/views/{viewID}/search", handlers.SearchView(d))
	authed.Post("/api/views/{viewID}/items/{origin}/{id}/favorite", handlers.ToggleFavorite(d))
	authed.Put("/api/views/{viewID}/items/{origin}/{id}/status", handlers.UpdateStatus(d))
}
