package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/session"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/gorilla/websocket"
)

const (
	streamReadWait  = 75 * time.Second // a bit over the server's ping period
	streamBufferLen = 64
)

// Dial opens the project's realtime event stream. The returned stream's
// channel closes when the connection drops for any reason; the session
// redials.
func (c *Client) Dial(ctx context.Context, projectID string) (session.Stream, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") +
		"/projects/" + projectID + "/events"

	hdr := http.Header{}
	c.setIdentity(hdr)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}

	st := &stream{conn: conn, events: make(chan session.StreamEvent, streamBufferLen)}
	go st.readLoop()
	return st, nil
}

type stream struct {
	conn   *websocket.Conn
	events chan session.StreamEvent
}

func (s *stream) Events() <-chan session.StreamEvent { return s.events }

func (s *stream) Close() error {
	return s.conn.Close()
}

// envelope mirrors the daemon's wire frame; the payload is decoded per
// kind.
type envelope struct {
	EventID    string          `json:"eventId"`
	Kind       string          `json:"kind"`
	OccurredAt int64           `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *stream) readLoop() {
	defer close(s.events)
	defer func() { _ = s.conn.Close() }()

	_ = s.conn.SetReadDeadline(time.Now().Add(streamReadWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(streamReadWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return
		}

		evt := session.StreamEvent{EventID: env.EventID, Kind: env.Kind}
		switch env.Kind {
		case bus.KindMessageNew:
			var m store.Message
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				continue
			}
			evt.Message = &m
		case bus.KindTyping:
			var tp bus.TypingPayload
			if err := json.Unmarshal(env.Payload, &tp); err != nil {
				continue
			}
			evt.Typing = &tp
		default:
			continue
		}

		select {
		case s.events <- evt:
		default:
			// Slow consumer; drop rather than stall the read loop. The
			// session's history merge covers anything missed.
		}
	}
}
