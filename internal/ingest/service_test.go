package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/agencykit/projectchat/internal/attach"
	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/agencykit/projectchat/internal/store"
	"go.uber.org/zap"
)

func testService(t *testing.T) (*Service, *store.DB, *bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	svc := NewService(db, attach.NewLinker(10<<20), b, zap.NewNop(), metrics.New())
	return svc, db, b
}

func TestAppendPublishesStoredMessage(t *testing.T) {
	svc, db, b := testService(t)
	if _, err := db.CreateProject("p1", ""); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.Topic("p1"), 10)
	defer unsub()

	m, err := svc.Append(context.Background(), "p1", store.Sender{ID: "u1", Name: "Alice"}, "Hello", nil)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageNew {
			t.Fatalf("kind = %q, want %q", evt.Kind, bus.KindMessageNew)
		}
		got, ok := evt.Payload.(*store.Message)
		if !ok {
			t.Fatalf("payload type %T, want *store.Message", evt.Payload)
		}
		if got.ID != m.ID || got.Body != "Hello" || got.Seq != m.Seq {
			t.Errorf("published %+v, want stored message %+v", got, m)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message:new event")
	}

	// The published message must be retrievable from history.
	msgs, err := db.ListMessages("p1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != m.ID {
		t.Error("published message not found in history")
	}
}

func TestAppendEmptyMessage(t *testing.T) {
	svc, db, b := testService(t)
	if _, err := db.CreateProject("p1", ""); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.Topic("p1"), 10)
	defer unsub()

	_, err := svc.Append(context.Background(), "p1", store.Sender{ID: "u1"}, "", nil)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("err = %v, want ErrInvalidMessage", err)
	}

	select {
	case evt := <-ch:
		t.Errorf("rejected message must not publish, got %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestAppendAttachmentOnly(t *testing.T) {
	svc, db, _ := testService(t)
	if _, err := db.CreateProject("p1", ""); err != nil {
		t.Fatal(err)
	}

	ref := &store.Attachment{
		Filename: "spec.pdf", MIME: "application/pdf", Size: 100,
		URL: "https://files.example.com/spec.pdf", StorageKey: "k1",
	}
	m, err := svc.Append(context.Background(), "p1", store.Sender{ID: "u1"}, "", ref)
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != store.KindFile || m.Attachment == nil {
		t.Errorf("got kind=%q attachment=%v, want file message", m.Kind, m.Attachment)
	}
}

func TestAppendInvalidAttachment(t *testing.T) {
	svc, db, _ := testService(t)
	if _, err := db.CreateProject("p1", ""); err != nil {
		t.Fatal(err)
	}

	ref := &store.Attachment{Filename: "x"} // missing everything else
	_, err := svc.Append(context.Background(), "p1", store.Sender{ID: "u1"}, "", ref)
	if !errors.Is(err, attach.ErrInvalidAttachment) {
		t.Fatalf("err = %v, want ErrInvalidAttachment", err)
	}
}

func TestAppendUnknownProject(t *testing.T) {
	svc, _, _ := testService(t)

	_, err := svc.Append(context.Background(), "missing", store.Sender{ID: "u1"}, "hi", nil)
	if !errors.Is(err, store.ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestAppendDefaultsRole(t *testing.T) {
	svc, db, _ := testService(t)
	if _, err := db.CreateProject("p1", ""); err != nil {
		t.Fatal(err)
	}

	m, err := svc.Append(context.Background(), "p1", store.Sender{ID: "u1"}, "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.SenderRole != store.RoleParticipant {
		t.Errorf("role = %q, want %q", m.SenderRole, store.RoleParticipant)
	}
}
