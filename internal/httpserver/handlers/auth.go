package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

func SignUp(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.SignUpInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		user, err := d.Users.SignUp(r.Context(), in)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func SignIn(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.SignInInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		sess, err := d.Users.SignIn(r.Context(), in)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func SignOut(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Users.SignOut(r.Context(), auth.TokenFrom(r.Context())); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type forgotRequest struct {
	Email string `json:"email"`
}

// ForgotPassword always answers 202 so callers cannot probe for accounts.
func ForgotPassword(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in forgotRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		if err := d.Users.RequestPasswordReset(r.Context(), in.Email); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "if the account exists, a reset link has been issued",
		})
	}
}

func ResetPassword(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.ResetPasswordInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		if err := d.Users.ResetPassword(r.Context(), in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
