package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/overlaylabs/copresence/internal/httpserver/deps"
	"github.com/overlaylabs/copresence/internal/httpserver/mw"
	"github.com/overlaylabs/copresence/internal/hub"
	"github.com/overlaylabs/copresence/internal/logger"
)

// WS upgrades an authenticated request to a websocket connection and hands
// it to the hub. Auth runs in middleware; an unauthenticated request never
// reaches the upgrade.
func WS(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(d.AllowedOrigins),
	}

	sendBuffer := d.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = hub.DefaultSendBuffer
	}

	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			d.Logger.Debug("websocket upgrade failed",
				logger.String("user_id", user.ID),
				logger.Error(err))
			return
		}

		d.Logger.Info("websocket connected",
			logger.String("user_id", user.ID),
			logger.String("remote_ip", r.RemoteAddr))

		client := hub.NewClient(d.Hub, conn, user, sendBuffer)
		go client.WritePump()
		go client.ReadPump()
	}
}

// originChecker allows the configured origins, or any origin when the list
// is empty. The widget is embedded on arbitrary customer pages; tokens,
// not origins, are the real gate.
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	if len(allowedOrigins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		return allowed[origin]
	}
}
