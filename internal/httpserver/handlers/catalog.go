package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
)

func Catalog(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Catalog.Get())
	}
}
