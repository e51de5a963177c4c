// Package presence tracks ephemeral per-(project, user) typing state.
// Entries expire after a short TTL; expiry is never announced on the
// channel; subscribers time indicators out locally, which keeps the
// server free of per-entry timer fan-out.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/metrics"
	"go.uber.org/zap"
)

type key struct {
	projectID string
	userID    string
}

// Tracker is the typing state machine: idle → typing → idle, where the
// second transition happens on explicit stop or TTL expiry.
type Tracker struct {
	ttl     time.Duration
	channel bus.Channel
	logger  *zap.Logger
	metrics *metrics.Set

	mu      sync.Mutex
	entries map[key]time.Time // expiry deadline per typing user
	now     func() time.Time

	cancel context.CancelFunc
}

// NewTracker creates a tracker with the given typing TTL.
func NewTracker(ch bus.Channel, ttl time.Duration, logger *zap.Logger, m *metrics.Set) *Tracker {
	return &Tracker{
		ttl:     ttl,
		channel: ch,
		logger:  logger,
		metrics: m,
		entries: make(map[key]time.Time),
		now:     time.Now,
	}
}

// Signal records a typing signal from a user. A start refreshes the entry
// and publishes at most once per TTL window (rapid keystroke bursts
// coalesce); a stop clears immediately and is a no-op for idle users.
func (t *Tracker) Signal(projectID, userID string, isTyping bool) {
	k := key{projectID: projectID, userID: userID}

	t.mu.Lock()
	now := t.now()
	deadline, exists := t.entries[k]
	active := exists && now.Before(deadline)
	if isTyping {
		t.entries[k] = now.Add(t.ttl)
	} else {
		delete(t.entries, k)
	}
	t.mu.Unlock()

	if isTyping == active {
		// Already announced for this window, or clearing an idle entry.
		return
	}

	t.channel.Publish(bus.Event{
		Topic:     bus.Topic(projectID),
		Kind:      bus.KindTyping,
		Timestamp: now,
		Payload:   &bus.TypingPayload{UserID: userID, IsTyping: isTyping},
	})
	t.metrics.EventsPublished.WithLabelValues(bus.KindTyping).Inc()
}

// Typing returns the users currently typing in a project. Stale entries
// are dropped on read.
func (t *Tracker) Typing(projectID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var users []string
	for k, deadline := range t.entries {
		if !now.Before(deadline) {
			delete(t.entries, k)
			continue
		}
		if k.projectID == projectID {
			users = append(users, k.userID)
		}
	}
	return users
}

// Start launches the background sweep that keeps the map bounded. Expired
// entries just vanish; no event is published for them.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	interval := t.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the background sweep.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	now := t.now()
	removed := 0
	for k, deadline := range t.entries {
		if !now.Before(deadline) {
			delete(t.entries, k)
			removed++
		}
	}
	t.mu.Unlock()

	if removed > 0 {
		t.logger.Debug("typing entries expired", zap.Int("count", removed))
	}
}
