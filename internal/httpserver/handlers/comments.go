package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/httpserver/deps"
	"github.com/overlaylabs/copresence/internal/httpserver/mw"
	"github.com/overlaylabs/copresence/internal/utils"
)

type createCommentRequest struct {
	Content  string          `json:"content"`
	Position domain.Position `json:"position"`
	ParentID string          `json:"parentId,omitempty"`
	ThreadID string          `json:"threadId,omitempty"`
	XPath    string          `json:"xpath,omitempty"`
}

type listCommentsResponse struct {
	RoomID   string            `json:"roomId"`
	Comments []*domain.Comment `json:"comments"`
}

// ListComments returns the live comments of a room, oldest first.
func ListComments(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		list, err := d.Comments.ListComments(r.Context(), roomID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listCommentsResponse{RoomID: roomID, Comments: list})
	}
}

// CreateComment persists a comment through the same service path as the
// websocket handlers, so connected clients still receive the broadcast.
func CreateComment(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, domain.ErrUnauthorized)
			return
		}

		defer utils.Close(r.Body)

		roomID := chi.URLParam(r, "roomID")
		var req createCommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
			return
		}

		c, err := d.Comments.CreateComment(r.Context(), roomID, user, req.Content, req.Position, req.ParentID, req.ThreadID, req.XPath)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// DeleteComment tombstones a comment. Author-only.
func DeleteComment(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, domain.ErrUnauthorized)
			return
		}

		commentID := chi.URLParam(r, "commentID")
		c, err := d.Comments.Get(r.Context(), commentID)
		if err != nil {
			writeError(w, err)
			return
		}

		if _, err := d.Comments.DeleteComment(r.Context(), c.RoomID, commentID, user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ResolveComment flips the resolved flag of a comment.
func ResolveComment(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, domain.ErrUnauthorized)
			return
		}

		commentID := chi.URLParam(r, "commentID")
		c, err := d.Comments.Get(r.Context(), commentID)
		if err != nil {
			writeError(w, err)
			return
		}

		updated, err := d.Comments.ToggleResolved(r.Context(), c.RoomID, commentID, user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}
