package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/mw"
)

// Uploads wait on the image host, so they get the long timeout.
func init() { Register(registerListings, uploadTimeout) }

func registerListings(r chi.Router, d deps.Deps) {
	authed := r.With(mw.RequireAuth(d.Users, d.Logger))
	authed.Post("/api/listings/books", handlers.CreateBook(d))
	authed.Post("/api/listings/notes", handlers.CreateNote(d))
	authed.Get("/api/listings/{origin}/{id}", handlers.GetListing(d))
}
