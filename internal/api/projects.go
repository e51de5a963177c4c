package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type createProjectRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// createProject provisions a chat room for a project. Normally called by
// the project-management side when a project is created.
func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidMessage", "invalid json body")
		return
	}

	p, err := h.db.CreateProject(req.ID, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"project": p})
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProject(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": p})
}
