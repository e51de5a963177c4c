package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(Topic("p1"), 10)
	defer unsub()

	b.Publish(Event{Topic: Topic("p1"), Kind: KindMessageNew, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageNew {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessageNew)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestTopicIsolation(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(Topic("p2"), 10)
	defer unsub()

	b.Publish(Event{Topic: Topic("p1"), Kind: KindMessageNew})
	b.Publish(Event{Topic: Topic("p2"), Kind: KindTyping})

	select {
	case evt := <-ch:
		if evt.Kind != KindTyping {
			t.Errorf("got kind %q, want %q", evt.Kind, KindTyping)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the other project's event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(Topic("p1"), 10)
	unsub()

	b.Publish(Event{Topic: Topic("p1"), Kind: KindMessageNew})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(Topic("p1"), 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Topic: Topic("p1"), Kind: "one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Topic: Topic("p1"), Kind: "two"})

	evt := <-ch
	if evt.Kind != "one" {
		t.Errorf("got %q, want one", evt.Kind)
	}
}
