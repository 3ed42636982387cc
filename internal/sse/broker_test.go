package sse

import (
	"strings"
	"testing"
	"time"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestSubscribeAndCount(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if n := b.ClientCount(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	b.Unsubscribe(ch1)
	if n := b.ClientCount(); n != 1 {
		t.Errorf("count after unsubscribe = %d, want 1", n)
	}
	b.Unsubscribe(ch2)
}

func TestPublishReachesAllClients(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	b.Publish(Event{Type: "test.event", Data: map[string]string{"k": "v"}})

	for _, ch := range []chan []byte{ch1, ch2} {
		msg := recv(t, ch)
		if !strings.Contains(msg, "event: test.event") {
			t.Errorf("msg = %q", msg)
		}
		if !strings.Contains(msg, `"k":"v"`) {
			t.Errorf("msg = %q", msg)
		}
	}
}

func TestPublishDocumentEvent(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.Subscribe()
	b.PublishDocumentEvent("created", "a.md")

	msg := recv(t, ch)
	if !strings.Contains(msg, "event: document.created") {
		t.Errorf("msg = %q", msg)
	}
	if !strings.Contains(msg, `"path":"a.md"`) {
		t.Errorf("msg = %q", msg)
	}

	// The first document event also triggers graph.updated.
	msg = recv(t, ch)
	if !strings.Contains(msg, "event: graph.updated") {
		t.Errorf("msg = %q", msg)
	}
}

func TestGraphEventThrottled(t *testing.T) {
	b := NewBroker(10 * time.Second)
	defer b.Close()

	ch := b.Subscribe()

	b.PublishDocumentEvent("updated", "a.md")
	recv(t, ch) // document.updated
	recv(t, ch) // graph.updated (first one passes)

	b.PublishDocumentEvent("updated", "b.md")
	msg := recv(t, ch)
	if !strings.Contains(msg, "event: document.updated") {
		t.Errorf("msg = %q", msg)
	}

	// No second graph.updated inside the throttle window.
	select {
	case extra := <-ch:
		t.Errorf("unexpected event: %q", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseShutsDownClients(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after broker Close")
	}

	// Calls after Close are no-ops.
	b.Publish(Event{Type: "ignored"})
	b.PublishDocumentEvent("created", "x.md")
	if n := b.ClientCount(); n != 0 {
		t.Errorf("count after close = %d", n)
	}

	late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
