package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type typingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// postTyping records a typing signal. Presence is best-effort UX: a
// rate-limited burst is silently dropped rather than surfaced, and the
// response never blocks the send path.
func (h *Handler) postTyping(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]

	from, ok := sender(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing sender identity")
		return
	}
	if _, err := h.db.GetProject(projectID); err != nil {
		writeDomainError(w, err)
		return
	}

	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidMessage", "invalid json body")
		return
	}

	if h.limits.Allow(projectID + "/" + from.ID) {
		h.presence.Signal(projectID, from.ID, req.IsTyping)
	} else {
		h.logger.Debug("typing signal rate limited",
			zap.String("project_id", projectID), zap.String("sender_id", from.ID))
	}
	w.WriteHeader(http.StatusNoContent)
}

// limiterPool keeps one token bucket per (project, sender).
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.m[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.m[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
