package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/overlaylabs/copresence/internal/httpserver/deps"
	"github.com/overlaylabs/copresence/internal/httpserver/handlers"
	"github.com/overlaylabs/copresence/internal/httpserver/mw"
)

func init() { Register(registerWS) }

// The websocket route must never sit behind a request timeout middleware;
// connections are long-lived.
func registerWS(r chi.Router, d deps.Deps) {
	r.With(mw.Auth(d.Verifier, d.Logger)).Get("/ws", handlers.WS(d))
}
