package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/mw"
)

func init() { Register(registerAccount, shortTimeout) }

func registerAccount(r chi.Router, d deps.Deps) {
	authed := r.With(mw.RequireAuth(d.Users, d.Logger))
	authed.Get("/api/profile", handlers.GetProfile(d))
	authed.Put("/api/profile", handlers.UpdateProfile(d))
	authed.Get("/api/catalog", handlers.Catalog(d))
}
