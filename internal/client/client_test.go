package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/agencykit/projectchat/internal/api"
	"github.com/agencykit/projectchat/internal/attach"
	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/ingest"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/agencykit/projectchat/internal/presence"
	"github.com/agencykit/projectchat/internal/session"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/agencykit/projectchat/internal/ws"
	"go.uber.org/zap"
)

func testDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	m := metrics.New()
	b := bus.New()
	svc := ingest.NewService(db, attach.NewLinker(10<<20), b, logger, m)
	tracker := presence.NewTracker(b, 3*time.Second, logger, m)
	hub := ws.NewHub(b, logger, m)

	h := api.NewHandler(db, svc, tracker, hub, logger, m, api.Options{})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func alice(srv *httptest.Server) *Client {
	return New(srv.URL, Identity{ID: "u1", Name: "Alice", Role: store.RoleParticipant})
}

func TestPostAndListRoundtrip(t *testing.T) {
	srv := testDaemon(t)
	c := alice(srv)
	ctx := context.Background()

	if _, err := c.CreateProject(ctx, "p1", "Website Redesign"); err != nil {
		t.Fatal(err)
	}

	m, err := c.PostMessage(ctx, "p1", "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.Seq != 1 {
		t.Errorf("confirmed message = %+v, want assigned id and seq 1", m)
	}

	msgs, err := c.ListMessages(ctx, "p1", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != m.ID {
		t.Errorf("history = %+v, want the posted message", msgs)
	}
}

func TestDomainErrorsSurface(t *testing.T) {
	srv := testDaemon(t)
	c := alice(srv)
	ctx := context.Background()

	if _, err := c.PostMessage(ctx, "nope", "hello", nil); err == nil {
		t.Fatal("post to unknown project should fail")
	} else {
		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Code != "NotFound" {
			t.Errorf("err = %v, want NotFound api error", err)
		}
	}

	if _, err := c.CreateProject(ctx, "p1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PostMessage(ctx, "p1", "", nil); err == nil {
		t.Fatal("empty message should fail")
	} else {
		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Code != "InvalidMessage" {
			t.Errorf("err = %v, want InvalidMessage api error", err)
		}
	}
}

func TestTypingBestEffort(t *testing.T) {
	srv := testDaemon(t)
	c := alice(srv)
	ctx := context.Background()

	if _, err := c.CreateProject(ctx, "p1", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.PostTyping(ctx, "p1", true); err != nil {
		t.Fatal(err)
	}
	if err := c.PostTyping(ctx, "p1", false); err != nil {
		t.Fatal(err)
	}
}

func TestStreamDeliversPostedMessage(t *testing.T) {
	srv := testDaemon(t)
	c := alice(srv)
	ctx := context.Background()

	if _, err := c.CreateProject(ctx, "p1", ""); err != nil {
		t.Fatal(err)
	}

	st, err := c.Dial(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	posted, err := c.PostMessage(ctx, "p1", "over the wire", nil)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-st.Events():
		if evt.Kind != bus.KindMessageNew {
			t.Fatalf("kind = %q, want %q", evt.Kind, bus.KindMessageNew)
		}
		if evt.Message == nil || evt.Message.ID != posted.ID {
			t.Errorf("event message = %+v, want posted message", evt.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stream event")
	}
}

// Full stack: a session running over the real client against the real
// daemon sees a second participant's message and typing indicator.
func TestSessionOverClient(t *testing.T) {
	srv := testDaemon(t)
	c := alice(srv)
	bob := New(srv.URL, Identity{ID: "u2", Name: "Bob", Role: store.RoleStaff})
	ctx := context.Background()

	if _, err := c.CreateProject(ctx, "p1", ""); err != nil {
		t.Fatal(err)
	}

	s := session.New("p1", "u1", c, c, session.Config{}, zap.NewNop())
	if err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	if err := bob.PostTyping(ctx, "p1", true); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.PostMessage(ctx, "p1", "hi from bob", nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-s.Updates():
			if len(u.Messages) == 1 && u.Messages[0].Message.Body == "hi from bob" {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for bob's message in the session view")
		}
	}
}
