package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agencykit/projectchat/internal/store"
	"github.com/gorilla/mux"
)

type postMessageRequest struct {
	Content       string            `json:"content"`
	Type          string            `json:"type"` // TEXT | FILE
	AttachmentRef *store.Attachment `json:"attachmentRef,omitempty"`
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	limit := h.opts.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.opts.MaxLimit {
		limit = h.opts.MaxLimit
	}

	var before int64
	if s := r.URL.Query().Get("before"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			before = n
		}
	}

	msgs, err := h.db.ListMessages(projectID, limit, before)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	from, ok := sender(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing sender identity")
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidMessage", "invalid json body")
		return
	}
	switch req.Type {
	case "", "TEXT", "FILE":
	default:
		writeError(w, http.StatusBadRequest, "InvalidMessage", "type must be TEXT or FILE")
		return
	}
	if req.Type == "FILE" && req.AttachmentRef == nil {
		writeError(w, http.StatusBadRequest, "InvalidAttachment", "FILE message needs an attachmentRef")
		return
	}

	m, err := h.ingest.Append(r.Context(), projectID, from, req.Content, req.AttachmentRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": m})
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	if _, err := h.db.GetProject(projectID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.hub.ServeProject(w, r, projectID)
}
