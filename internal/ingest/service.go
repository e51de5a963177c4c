// Package ingest is the write path for project messages: validate, append
// to the durable log, then fan out. The publish happens strictly after the
// append commits, so a subscriber can never see a message that a history
// re-fetch would not find.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/agencykit/projectchat/internal/attach"
	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/agencykit/projectchat/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidMessage is returned when a message has neither body text nor
// an attachment reference.
var ErrInvalidMessage = errors.New("message needs a body or an attachment")

// Service appends messages for concurrent senders across projects.
type Service struct {
	db      *store.DB
	linker  *attach.Linker
	channel bus.Channel
	logger  *zap.Logger
	metrics *metrics.Set
}

// NewService creates the ingestion service.
func NewService(db *store.DB, linker *attach.Linker, ch bus.Channel, logger *zap.Logger, m *metrics.Set) *Service {
	return &Service{db: db, linker: linker, channel: ch, logger: logger, metrics: m}
}

// Append validates and stores a message, then publishes exactly one
// message:new event to the project's topic carrying the stored message.
func (s *Service) Append(_ context.Context, projectID string, sender store.Sender, body string, ref *store.Attachment) (*store.Message, error) {
	if body == "" && ref == nil {
		return nil, ErrInvalidMessage
	}
	if sender.Role == "" {
		sender.Role = store.RoleParticipant
	}

	var att *store.Attachment
	if ref != nil {
		linked, err := s.linker.Link(ref)
		if err != nil {
			return nil, err
		}
		att = linked
	}

	m, err := s.db.AppendMessage(projectID, sender, body, att)
	if err != nil {
		return nil, err
	}

	s.channel.Publish(bus.Event{
		Topic:     bus.Topic(projectID),
		Kind:      bus.KindMessageNew,
		Timestamp: time.Now(),
		Payload:   m,
	})

	s.metrics.MessagesAppended.Inc()
	s.metrics.EventsPublished.WithLabelValues(bus.KindMessageNew).Inc()
	s.logger.Info("message appended",
		zap.String("project_id", projectID),
		zap.String("msg_id", m.ID),
		zap.Int64("seq", m.Seq),
		zap.String("kind", m.Kind))

	return m, nil
}
