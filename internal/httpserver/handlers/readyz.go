package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/overlaylabs/copresence/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Redis string `json:"redis,omitempty"`
}

// Readyz reports readiness. Redis being down degrades persistence but the
// live collaboration path still works, so it never flips readiness to false.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redisState := "disabled"
		if d.RedisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.RedisClient.Ping(ctx).Err(); err != nil {
				redisState = "down"
			} else {
				redisState = "ok"
			}
		}

		writeJSON(w, http.StatusOK, readyzResponse{
			Ready: true,
			Redis: redisState,
		})
	}
}
