package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

func GetProfile(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := d.Users.Profile(r.Context(), identity(r))
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func UpdateProfile(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.ProfileInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		user, err := d.Users.UpdateProfile(r.Context(), identity(r), in)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
