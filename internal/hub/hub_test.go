package hub

import (
	"errors"
	"testing"
)

type testWriter struct {
	messages [][]byte
	fail     bool
	closed   bool
}

func (w *testWriter) Write(message []byte) error {
	w.messages = append(w.messages, message)
	if w.fail {
		return errors.New("write failed")
	}
	return nil
}

func (w *testWriter) Close() error {
	w.closed = true
	return nil
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	h := New()
	w1 := &testWriter{}
	c1 := &Connection{OwnerID: "u", Writer: w1}

	h.Register(c1)
	if h.Connections("u") != 1 {
		t.Fatalf("expected 1 connection, got %d", h.Connections("u"))
	}
	h.Broadcast("u", []byte("x"))
	h.Broadcast("other", []byte("y"))
	if len(w1.messages) != 1 {
		t.Fatalf("expected 1 write, got %d", len(w1.messages))
	}

	h.Unregister(c1)
	h.Broadcast("u", []byte("x"))
	if len(w1.messages) != 1 {
		t.Fatalf("expected no more writes, got %d", len(w1.messages))
	}
	if h.Connections("u") != 0 {
		t.Fatalf("expected owner entry removed")
	}
}

func TestHub_RemovesFailedConnections(t *testing.T) {
	h := New()
	w1 := &testWriter{fail: true}
	c1 := &Connection{OwnerID: "u", Writer: w1}
	h.Register(c1)

	h.Broadcast("u", []byte("x"))
	h.Broadcast("u", []byte("x"))
	if len(w1.messages) != 1 {
		t.Fatalf("expected only 1 write before removal, got %d", len(w1.messages))
	}
	if !w1.closed {
		t.Fatalf("expected failed connection closed")
	}
}

func TestHub_PublishEnvelope(t *testing.T) {
	h := New()
	w := &testWriter{}
	h.Register(&Connection{OwnerID: "u", Writer: w})

	if err := h.Publish("u", Update{Type: "session-update", Body: map[string]string{"id": "s1"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	want := `{"type":"session-update","body":{"id":"s1"}}`
	if string(w.messages[0]) != want {
		t.Fatalf("unexpected envelope %s", w.messages[0])
	}

	if err := h.Publish("u", Update{Body: make(chan int)}); err == nil {
		t.Fatalf("expected encode error")
	}
}
