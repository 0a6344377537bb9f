package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/overlaylabs/copresence/internal/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses and a stable error code.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.HTTPStatus(err), errorResponse{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	})
}
