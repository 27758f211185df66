package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/mw"
)

func init() { Register(registerAuth, shortTimeout) }

func registerAuth(r chi.Router, d deps.Deps) {
	limited := r.With(mw.RateLimit(mw.RateLimitConfig{
		PerSecond:  d.AuthRateLimit,
		Burst:      d.AuthRateBurst,
		MaxEntries: 10000,
		TrustProxy: d.TrustProxy,
	}))
	limited.Post("/api/auth/signup", handlers.SignUp(d))
	limited.Post("/api/auth/signin", handlers.SignIn(d))
	limited.Post("/api/auth/forgot", handlers.ForgotPassword(d))
	limited.Post("/api/auth/reset", handlers.ResetPassword(d))

	r.With(mw.RequireAuth(d.Users, d.Logger)).Post("/api/auth/signout", handlers.SignOut(d))
}
