package pairing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func newBridgeServer(t *testing.T, script func(ws *websocket.Conn, start bridgeFrame)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/sessions/") {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var start bridgeFrame
		if err := ws.ReadJSON(&start); err != nil {
			return
		}
		script(ws, start)
	}))
}

func TestBridge_ForwardsFrames(t *testing.T) {
	srv := newBridgeServer(t, func(ws *websocket.Conn, start bridgeFrame) {
		if start.Type != "start" || string(start.Credentials) != "saved" {
			_ = ws.WriteJSON(bridgeFrame{Type: "close", Reason: "bad-start"})
			return
		}
		_ = ws.WriteJSON(bridgeFrame{Type: "qr", Code: "code-1"})
		_ = ws.WriteJSON(bridgeFrame{Type: "creds", Credentials: []byte("fresh")})
		_ = ws.WriteJSON(bridgeFrame{Type: "open"})
		_ = ws.WriteJSON(bridgeFrame{Type: "close", Reason: "logged_out"})
	})
	defer srv.Close()

	b := NewBridge(srv.URL)
	events, err := b.Connect(context.Background(), "s1", []byte("saved"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(got), got)
	}
	if got[0].Kind != EventArtifact || got[0].Code != "code-1" {
		t.Fatalf("unexpected artifact event %+v", got[0])
	}
	if got[1].Kind != EventCredentials || string(got[1].Credentials) != "fresh" {
		t.Fatalf("unexpected credentials event %+v", got[1])
	}
	if got[2].Kind != EventLinked {
		t.Fatalf("unexpected linked event %+v", got[2])
	}
	if got[3].Kind != EventDisconnected || got[3].Reason != ReasonLoggedOut {
		t.Fatalf("unexpected disconnect event %+v", got[3])
	}
}

func TestBridge_AbruptCloseIsConnectionLost(t *testing.T) {
	srv := newBridgeServer(t, func(ws *websocket.Conn, _ bridgeFrame) {
		_ = ws.WriteJSON(bridgeFrame{Type: "open"})
	})
	defer srv.Close()

	b := NewBridge(srv.URL)
	events, err := b.Connect(context.Background(), "s1", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	var last Event
	for ev := range events {
		last = ev
	}
	if last.Kind != EventDisconnected || last.Reason != ReasonConnectionLost {
		t.Fatalf("expected connection_lost, got %+v", last)
	}
}

func TestBridge_DisconnectClosesQuietly(t *testing.T) {
	release := make(chan struct{})
	srv := newBridgeServer(t, func(ws *websocket.Conn, _ bridgeFrame) {
		_ = ws.WriteJSON(bridgeFrame{Type: "qr", Code: "c"})
		<-release
	})
	defer srv.Close()
	defer close(release)

	b := NewBridge(srv.URL)
	events, err := b.Connect(context.Background(), "s1", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := <-events
	if first.Kind != EventArtifact {
		t.Fatalf("unexpected first event %+v", first)
	}
	if err := b.Disconnect("s1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	for ev := range events {
		if ev.Kind == EventDisconnected {
			t.Fatalf("local disconnect must not surface a disconnect event")
		}
	}
}

func TestBridge_DialFailure(t *testing.T) {
	b := NewBridge("ws://127.0.0.1:1")
	if _, err := b.Connect(context.Background(), "s1", nil); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestQRRenderer_DataURL(t *testing.T) {
	out, err := QRRenderer{}.Render("2@abc,def")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(out, "data:image/png;base64,") {
		t.Fatalf("unexpected rendering prefix: %.40s", out)
	}
	if _, err := (QRRenderer{}).Render(""); err == nil {
		t.Fatalf("expected error for empty code")
	}
}

func TestBridge_CloseReasons(t *testing.T) {
	cases := map[string]DisconnectReason{
		"logged_out":       ReasonLoggedOut,
		"timed_out":        ReasonTimedOut,
		"restart_required": ReasonRestartRequired,
		"":                 ReasonConnectionLost,
		"stream_errored":   ReasonConnectionLost,
	}
	for raw, want := range cases {
		srv := newBridgeServer(t, func(ws *websocket.Conn, start bridgeFrame) {
			_ = ws.WriteJSON(bridgeFrame{Type: "close", Reason: raw})
		})

		events, err := NewBridge(srv.URL).Connect(context.Background(), "s1", nil)
		if err != nil {
			srv.Close()
			t.Fatalf("Connect: %v", err)
		}
		var last Event
		for ev := range events {
			last = ev
		}
		srv.Close()

		if last.Kind != EventDisconnected || last.Reason != want {
			t.Fatalf("reason %q: expected %q, got %+v", raw, want, last)
		}
		if last.Reason.Recoverable() != (want != ReasonLoggedOut) {
			t.Fatalf("reason %q: unexpected recoverability", raw)
		}
	}
}
