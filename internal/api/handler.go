// Package api serves the project chat REST surface and the realtime
// upgrade endpoint. Authorization is the gateway's concern; callers are
// identified at this boundary by X-Sender-* headers.
package api

import (
	"net/http"

	"github.com/agencykit/projectchat/internal/ingest"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/agencykit/projectchat/internal/presence"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/agencykit/projectchat/internal/ws"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options bounds the list endpoint and the typing rate limit.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	TypingRPS    float64
	TypingBurst  int
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	db       *store.DB
	ingest   *ingest.Service
	presence *presence.Tracker
	hub      *ws.Hub
	logger   *zap.Logger
	metrics  *metrics.Set
	opts     Options
	limits   *limiterPool
}

// NewHandler creates the API handler.
func NewHandler(db *store.DB, svc *ingest.Service, tracker *presence.Tracker, hub *ws.Hub,
	logger *zap.Logger, m *metrics.Set, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 200
	}
	return &Handler{
		db:       db,
		ingest:   svc,
		presence: tracker,
		hub:      hub,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		limits:   newLimiterPool(opts.TypingRPS, opts.TypingBurst),
	}
}

// Router builds the HTTP route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/projects", h.createProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}", h.getProject).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}/messages", h.postMessage).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/typing", h.postTyping).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/events", h.events).Methods(http.MethodGet)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sender extracts the caller identity forwarded by the gateway.
func sender(r *http.Request) (store.Sender, bool) {
	s := store.Sender{
		ID:   r.Header.Get("X-Sender-ID"),
		Name: r.Header.Get("X-Sender-Name"),
		Role: r.Header.Get("X-Sender-Role"),
	}
	if s.Role == "" {
		s.Role = store.RoleParticipant
	}
	return s, s.ID != ""
}
