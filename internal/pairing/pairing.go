// Package pairing wraps the messaging transport: it starts a link for a
// session, reports pairing codes, link establishment, credential updates and
// disconnects as events, and tears links down on request.
package pairing

import (
	"context"
	"errors"
)

type EventKind int

const (
	EventArtifact EventKind = iota + 1
	EventLinked
	EventCredentials
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventArtifact:
		return "artifact"
	case EventLinked:
		return "linked"
	case EventCredentials:
		return "credentials"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type DisconnectReason string

const (
	ReasonLoggedOut       DisconnectReason = "logged_out"
	ReasonConnectionLost  DisconnectReason = "connection_lost"
	ReasonTimedOut        DisconnectReason = "timed_out"
	ReasonRestartRequired DisconnectReason = "restart_required"
)

// Recoverable is false only for an explicit logout by the remote party.
func (r DisconnectReason) Recoverable() bool {
	return r != ReasonLoggedOut
}

type Event struct {
	Kind EventKind
	// Code is the raw pairing code for EventArtifact.
	Code string
	// Credentials is the opaque blob for EventCredentials.
	Credentials []byte
	Reason      DisconnectReason
}

var ErrNotConnected = errors.New("pairing: session has no open link")

// Adapter is the transport seam consumed by the session supervisor.
//
// Connect opens a link for sessionID using the previously stored credentials
// (nil on first pairing). The returned channel is closed when the link ends;
// the last event before the close is normally EventDisconnected. Cancelling
// ctx tears the link down without a disconnect event.
type Adapter interface {
	Connect(ctx context.Context, sessionID string, credentials []byte) (<-chan Event, error)
	Disconnect(sessionID string) error
}
