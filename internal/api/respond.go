package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agencykit/projectchat/internal/attach"
	"github.com/agencykit/projectchat/internal/ingest"
	"github.com/agencykit/projectchat/internal/store"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// writeDomainError maps core sentinel errors onto the wire taxonomy.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "InvalidMessage", err.Error())
	case errors.Is(err, attach.ErrInvalidAttachment):
		writeError(w, http.StatusBadRequest, "InvalidAttachment", err.Error())
	case errors.Is(err, store.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
	}
}
