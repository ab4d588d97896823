package pairing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const bridgeWriteTimeout = 10 * time.Second

// Bridge talks to an external pairing bridge that hosts the transport
// library, one websocket per session at BaseURL/sessions/{id}.
type Bridge struct {
	BaseURL string
	Header  http.Header
	Dialer  *websocket.Dialer

	mu    sync.Mutex
	conns map[string]*bridgeConn
}

type bridgeFrame struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	Credentials []byte `json:"credentials,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type bridgeConn struct {
	ws   *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *bridgeConn) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func NewBridge(baseURL string) *Bridge {
	return &Bridge{BaseURL: baseURL, conns: make(map[string]*bridgeConn)}
}

func (b *Bridge) sessionURL(sessionID string) (string, error) {
	base, err := url.Parse(strings.TrimRight(b.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	return base.String() + "/sessions/" + url.PathEscape(sessionID), nil
}

func (b *Bridge) Connect(ctx context.Context, sessionID string, credentials []byte) (<-chan Event, error) {
	target, err := b.sessionURL(sessionID)
	if err != nil {
		return nil, err
	}
	dialer := b.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, target, b.Header)
	if err != nil {
		return nil, fmt.Errorf("dial pairing bridge: %w", err)
	}

	_ = ws.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	if err := ws.WriteJSON(bridgeFrame{Type: "start", Credentials: credentials}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("start pairing: %w", err)
	}

	conn := &bridgeConn{ws: ws, done: make(chan struct{})}
	b.mu.Lock()
	if b.conns == nil {
		b.conns = make(map[string]*bridgeConn)
	}
	if prev, ok := b.conns[sessionID]; ok {
		prev.stop()
	}
	b.conns[sessionID] = conn
	b.mu.Unlock()

	out := make(chan Event, 16)
	go func() {
		select {
		case <-ctx.Done():
			conn.stop()
		case <-conn.done:
		}
	}()
	go b.readLoop(sessionID, conn, out)
	return out, nil
}

func (b *Bridge) readLoop(sessionID string, conn *bridgeConn, out chan<- Event) {
	defer close(out)
	defer b.forget(sessionID, conn)
	defer conn.stop()

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-conn.done:
			return false
		}
	}

	for {
		var frame bridgeFrame
		if err := conn.ws.ReadJSON(&frame); err != nil {
			select {
			case <-conn.done:
			default:
				emit(Event{Kind: EventDisconnected, Reason: ReasonConnectionLost})
			}
			return
		}

		switch frame.Type {
		case "qr":
			if !emit(Event{Kind: EventArtifact, Code: frame.Code}) {
				return
			}
		case "open":
			if !emit(Event{Kind: EventLinked}) {
				return
			}
		case "creds":
			if !emit(Event{Kind: EventCredentials, Credentials: frame.Credentials}) {
				return
			}
		case "close":
			emit(Event{Kind: EventDisconnected, Reason: bridgeReason(frame.Reason)})
			return
		}
	}
}

// bridgeReason maps a close frame reason onto the adapter reasons. Anything
// the bridge does not name explicitly counts as a lost connection.
func bridgeReason(raw string) DisconnectReason {
	switch reason := DisconnectReason(raw); reason {
	case ReasonLoggedOut, ReasonTimedOut, ReasonRestartRequired, ReasonConnectionLost:
		return reason
	default:
		return ReasonConnectionLost
	}
}

func (b *Bridge) forget(sessionID string, conn *bridgeConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conns[sessionID] == conn {
		delete(b.conns, sessionID)
	}
}

func (b *Bridge) Disconnect(sessionID string) error {
	b.mu.Lock()
	conn, ok := b.conns[sessionID]
	delete(b.conns, sessionID)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	_ = conn.ws.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	_ = conn.ws.WriteJSON(bridgeFrame{Type: "stop"})
	conn.stop()
	return nil
}
