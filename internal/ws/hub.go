// Package ws streams broadcast events to WebSocket subscribers. The bus is
// the subscriber registry; each connection holds one topic subscription
// for its lifetime. Nothing is buffered across reconnects; a client that
// comes back re-subscribes and re-pulls history to cover the gap.
package ws

import (
	"net/http"
	"time"

	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Envelope is the wire frame for one realtime event.
type Envelope struct {
	EventID    string `json:"eventId"`
	Kind       string `json:"kind"`
	OccurredAt int64  `json:"occurredAt"` // unix milliseconds
	Payload    any    `json:"payload"`
}

// Hub upgrades connections and bridges them to the broadcast channel.
type Hub struct {
	channel  bus.Channel
	logger   *zap.Logger
	metrics  *metrics.Set
	upgrader websocket.Upgrader
}

// NewHub creates a hub over the given broadcast channel.
func NewHub(ch bus.Channel, logger *zap.Logger, m *metrics.Set) *Hub {
	return &Hub{
		channel: ch,
		logger:  logger,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard frontend is served from another origin in
			// development; authorization happens at the gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeProject upgrades the request and streams the project's topic until
// the connection drops.
func (h *Hub) ServeProject(w http.ResponseWriter, r *http.Request, projectID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	events, unsub := h.channel.Subscribe(bus.Topic(projectID), sendBuffer)
	h.metrics.Subscribers.Inc()
	h.logger.Info("subscriber connected", zap.String("project_id", projectID))

	done := make(chan struct{})
	go h.writePump(conn, projectID, events, unsub, done)
	go readPump(conn, done)
}

func (h *Hub) writePump(conn *websocket.Conn, projectID string, events <-chan bus.Event, unsub func(), done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsub()
		_ = conn.Close()
		h.metrics.Subscribers.Dec()
		h.logger.Info("subscriber disconnected", zap.String("project_id", projectID))
	}()

	for {
		select {
		case evt := <-events:
			env := Envelope{
				EventID:    uuid.New().String(),
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp.UnixMilli(),
				Payload:    evt.Payload,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readPump exists to run the connection's read loop: pong handling and
// disconnect detection. Inbound frames carry no meaning on this endpoint.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
