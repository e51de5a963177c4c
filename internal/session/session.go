// Package session is the client half of the chat core: it merges a pulled
// history snapshot with the pushed live stream into one ordered,
// deduplicated view, times out typing indicators locally, and recovers
// from stream gaps by re-pulling history. All reconciliation runs on a
// single goroutine, so message inserts and typing sweeps never race
// within one session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned by Send when there is nothing to send.
var ErrEmptyMessage = errors.New("message needs a body or an attachment")

// StreamEvent is one decoded event from the realtime stream.
type StreamEvent struct {
	EventID string
	Kind    string
	Message *store.Message     // set for message:new
	Typing  *bus.TypingPayload // set for typing
}

// Stream is one live subscription to a project's broadcast topic. The
// events channel closing signals a dropped stream.
type Stream interface {
	Events() <-chan StreamEvent
	Close() error
}

// API is the server boundary the session pulls history from and sends
// through.
type API interface {
	ListMessages(ctx context.Context, projectID string, limit int, before int64) ([]store.Message, error)
	PostMessage(ctx context.Context, projectID, body string, ref *store.Attachment) (*store.Message, error)
	PostTyping(ctx context.Context, projectID string, isTyping bool) error
}

// Dialer establishes realtime streams.
type Dialer interface {
	Dial(ctx context.Context, projectID string) (Stream, error)
}

// Config tunes the session's timing behavior.
type Config struct {
	HistoryLimit  int
	TypingTTL     time.Duration
	TypingGrace   time.Duration
	QuietPeriod   time.Duration
	PollInterval  time.Duration
	RedialBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 3 * time.Second
	}
	if c.TypingGrace <= 0 {
		c.TypingGrace = time.Second
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.RedialBackoff <= 0 {
		c.RedialBackoff = time.Second
	}
	return c
}

// Update is a snapshot of the session pushed to the UI after each change.
type Update struct {
	State     State
	Messages  []Entry
	Typing    []string // user ids currently typing, sorted
	NewLatest bool     // the triggering change appended a newest message
}

// Session reconciles one project's chat for one user.
type Session struct {
	projectID string
	selfID    string
	api       API
	dialer    Dialer
	cfg       Config
	logger    *zap.Logger

	machine *Machine
	view    *View
	typing  map[string]time.Time // userID -> local expiry deadline

	stream Stream
	events <-chan StreamEvent

	typingActive bool
	typingSentAt time.Time
	quietAt      time.Time
	polling      bool

	actions chan func()
	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a session for one project. selfID filters the user's own
// typing echo out of the indicator list.
func New(projectID, selfID string, api API, dialer Dialer, cfg Config, logger *zap.Logger) *Session {
	return &Session{
		projectID: projectID,
		selfID:    selfID,
		api:       api,
		dialer:    dialer,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		machine:   NewMachine(),
		view:      NewView(),
		typing:    make(map[string]time.Time),
		actions:   make(chan func(), 16),
		updates:   make(chan Update, 1),
		done:      make(chan struct{}),
	}
}

// Open seeds the view from history, subscribes to the live stream, and
// starts the reconciliation loop. If the history pull fails the session
// does not subscribe and callers retry Open: a live stream with no baseline
// would render a misleading view.
func (s *Session) Open(ctx context.Context) error {
	history, err := s.api.ListMessages(ctx, s.projectID, s.cfg.HistoryLimit, 0)
	if err != nil {
		return fmt.Errorf("history pull: %w", err)
	}
	s.view.MergeHistory(history)

	ctx, s.cancel = context.WithCancel(ctx)

	stream, err := s.dialer.Dial(ctx, s.projectID)
	if err != nil {
		s.logger.Warn("subscribe failed, falling back to polling", zap.Error(err))
		s.transition(Degraded)
		go s.redial(ctx)
	} else {
		s.attach(stream)
		s.transition(Live)
	}

	s.publishUpdate(false)
	go s.loop(ctx)
	return nil
}

// Updates returns the snapshot channel. Only the most recent update is
// retained when the consumer lags.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.machine.Current()
}

// Send submits a message. The optimistic entry appears immediately and is
// replaced by the confirmed message; on failure it is removed and the
// error returned so the composer can keep the text for retry.
func (s *Session) Send(ctx context.Context, body string, ref *store.Attachment) error {
	if body == "" && ref == nil {
		return ErrEmptyMessage
	}

	localID := uuid.New().String()
	kind := store.KindText
	if ref != nil {
		kind = store.KindFile
	}
	optimistic := store.Message{
		ID:        localID,
		ProjectID: s.projectID,
		SenderID:  s.selfID,
		Body:      body,
		Kind:      kind,
		CreatedAt: time.Now().UnixMilli(),
	}

	s.do(func() {
		s.view.AddPending(localID, optimistic)
		s.stopTyping()
		s.publishUpdate(true)
	})

	m, err := s.api.PostMessage(ctx, s.projectID, body, ref)
	if err != nil {
		s.do(func() {
			s.view.RemovePending(localID)
			s.publishUpdate(false)
		})
		return fmt.Errorf("send message: %w", err)
	}

	s.do(func() {
		s.view.ResolvePending(localID, *m)
		s.publishUpdate(true)
	})
	return nil
}

// InputActivity reports a keystroke in the composer. Bursts collapse to
// at most one typing start per TTL window; the stop fires after the quiet
// period or on send.
func (s *Session) InputActivity() {
	s.do(func() {
		now := time.Now()
		s.quietAt = now.Add(s.cfg.QuietPeriod)
		if !s.typingActive || now.Sub(s.typingSentAt) >= s.cfg.TypingTTL {
			s.typingActive = true
			s.typingSentAt = now
			go s.sendTyping(true)
		}
	})
}

// Close tears the session down: unsubscribes, stops timers, ends the loop.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// do runs fn on the session loop.
func (s *Session) do(fn func()) {
	select {
	case s.actions <- fn:
	case <-s.done:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	sweepEvery := s.cfg.TypingTTL / 4
	if sweepEvery < 10*time.Millisecond {
		sweepEvery = 10 * time.Millisecond
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case fn := <-s.actions:
			fn()
		case evt, ok := <-s.events:
			if !ok {
				s.onStreamDrop(ctx)
				continue
			}
			s.handleEvent(evt)
		case <-sweep.C:
			s.onSweep()
		case <-poll.C:
			s.onPoll(ctx)
		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
}

func (s *Session) attach(stream Stream) {
	s.stream = stream
	s.events = stream.Events()
}

func (s *Session) handleEvent(evt StreamEvent) {
	switch evt.Kind {
	case bus.KindMessageNew:
		if evt.Message == nil {
			return
		}
		inserted, latest := s.view.Insert(*evt.Message)
		if inserted {
			// A confirmed message from this sender also clears any
			// stale typing indicator for them.
			delete(s.typing, evt.Message.SenderID)
			s.publishUpdate(latest)
		}
	case bus.KindTyping:
		if evt.Typing == nil || evt.Typing.UserID == s.selfID {
			return
		}
		if evt.Typing.IsTyping {
			s.typing[evt.Typing.UserID] = time.Now().Add(s.cfg.TypingTTL + s.cfg.TypingGrace)
		} else {
			delete(s.typing, evt.Typing.UserID)
		}
		s.publishUpdate(false)
	}
}

// onSweep enforces the hard local timeout on typing indicators and the
// outbound quiet-period stop.
func (s *Session) onSweep() {
	now := time.Now()

	changed := false
	for user, deadline := range s.typing {
		if now.After(deadline) {
			delete(s.typing, user)
			changed = true
		}
	}
	if changed {
		s.publishUpdate(false)
	}

	if s.typingActive && now.After(s.quietAt) {
		s.typingActive = false
		go s.sendTyping(false)
	}
}

func (s *Session) onPoll(ctx context.Context) {
	if s.machine.Current() != Degraded || s.polling {
		return
	}
	s.polling = true
	go func() {
		history, err := s.api.ListMessages(ctx, s.projectID, s.cfg.HistoryLimit, 0)
		s.do(func() {
			s.polling = false
			if err != nil {
				s.logger.Warn("degraded poll failed", zap.Error(err))
				return
			}
			if s.view.MergeHistory(history) > 0 {
				s.publishUpdate(true)
			}
		})
	}()
}

func (s *Session) onStreamDrop(ctx context.Context) {
	s.events = nil
	s.stream = nil
	s.transition(Reconnecting)
	s.publishUpdate(false)
	go s.redial(ctx)
}

// redial re-establishes the stream with backoff. After the first failed
// attempt the session degrades visibly to history polling. On success the
// stream is attached first and history re-pulled second, so anything that
// happened during the gap is either pushed or merged. This is what turns
// the channel's no-replay contract into a gap-free view.
func (s *Session) redial(ctx context.Context) {
	backoff := s.cfg.RedialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		stream, err := s.dialer.Dial(ctx, s.projectID)
		if err != nil {
			s.logger.Warn("redial failed", zap.Error(err))
			s.do(func() {
				if s.machine.Current() == Reconnecting {
					s.transition(Degraded)
					s.publishUpdate(false)
				}
			})
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}

		s.do(func() {
			s.transition(Connecting)
			s.attach(stream)
		})
		s.recoverGap(ctx)
		return
	}
}

func (s *Session) recoverGap(ctx context.Context) {
	for {
		history, err := s.api.ListMessages(ctx, s.projectID, s.cfg.HistoryLimit, 0)
		if err == nil {
			s.do(func() {
				added := s.view.MergeHistory(history)
				s.transition(Live)
				s.publishUpdate(added > 0)
			})
			return
		}
		s.logger.Warn("gap recovery pull failed", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RedialBackoff):
		}
	}
}

func (s *Session) shutdown() {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	if s.typingActive {
		s.typingActive = false
		go s.sendTyping(false)
	}
	s.transition(Closed)
}

func (s *Session) stopTyping() {
	if s.typingActive {
		s.typingActive = false
		go s.sendTyping(false)
	}
}

// sendTyping is fire-and-forget: presence is a UX nicety, and its failures
// never block or surface on the send path.
func (s *Session) sendTyping(isTyping bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.api.PostTyping(ctx, s.projectID, isTyping); err != nil {
		s.logger.Debug("typing signal failed", zap.Error(err))
	}
}

func (s *Session) transition(to State) {
	if err := s.machine.Transition(to); err != nil {
		s.logger.Debug("state transition skipped", zap.Error(err))
	}
}

func (s *Session) publishUpdate(newLatest bool) {
	users := make([]string, 0, len(s.typing))
	for u := range s.typing {
		users = append(users, u)
	}
	sort.Strings(users)

	u := Update{
		State:     s.machine.Current(),
		Messages:  s.view.Snapshot(),
		Typing:    users,
		NewLatest: newLatest,
	}

	// Keep only the freshest snapshot when the consumer lags.
	for {
		select {
		case s.updates <- u:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
