package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/overlaylabs/copresence/internal/httpserver/deps"
	"github.com/overlaylabs/copresence/internal/httpserver/handlers"
	"github.com/overlaylabs/copresence/internal/httpserver/mw"
)

func init() { Register(registerRooms) }

func registerRooms(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             30,
		RefillPerIPPerMin: 120,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
	})

	api := r.With(
		middleware.Timeout(5*time.Second),
		limit,
		mw.Auth(d.Verifier, d.Logger),
	)

	api.Post("/api/rooms/resolve", handlers.Resolve(d))
	api.Get("/api/rooms/{roomID}/presence", handlers.Presence(d))
	api.Get("/api/rooms/{roomID}/comments", handlers.ListComments(d))
	api.Post("/api/rooms/{roomID}/comments", handlers.CreateComment(d))
	api.Delete("/api/comments/{commentID}", handlers.DeleteComment(d))
	api.Post("/api/comments/{commentID}/resolve", handlers.ResolveComment(d))
}
