package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/httpserver/deps"
	"github.com/overlaylabs/copresence/internal/utils"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	RoomID        string `json:"roomId"`
	NormalizedURL string `json:"normalizedUrl"`
}

// Resolve maps a page URL to its deterministic room id without joining.
// Clients use it to prefetch comments before opening the websocket.
func Resolve(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer utils.Close(r.Body)

		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
			return
		}

		normalized, err := domain.NormalizeURL(req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
		roomID, err := domain.ResolveRoomID(req.URL)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, resolveResponse{
			RoomID:        roomID,
			NormalizedURL: normalized,
		})
	}
}

type presenceResponse struct {
	RoomID  string               `json:"roomId"`
	Users   []domain.Session     `json:"users"`
	Cursors []domain.CursorState `json:"cursors"`
}

// Presence returns who is currently in a room and where their cursors are.
func Presence(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			writeError(w, fmt.Errorf("%w: missing room id", domain.ErrValidation))
			return
		}

		writeJSON(w, http.StatusOK, presenceResponse{
			RoomID:  roomID,
			Users:   d.Registry.ListActive(roomID),
			Cursors: d.Engine.Snapshot(roomID),
		})
	}
}
