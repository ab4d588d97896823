package pairing

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Simulator is an in-process Adapter. Tests drive it through Emit; local runs
// can enable AutoCode to get a fresh pairing code on every connect.
type Simulator struct {
	AutoCode bool

	mu       sync.Mutex
	links    map[string]*simLink
	connects map[string]int
	failNext map[string]error
}

type simLink struct {
	in   chan Event
	out  chan Event
	done chan struct{}
	once sync.Once
}

func (l *simLink) stop() {
	l.once.Do(func() { close(l.done) })
}

func NewSimulator() *Simulator {
	return &Simulator{
		links:    make(map[string]*simLink),
		connects: make(map[string]int),
		failNext: make(map[string]error),
	}
}

func (s *Simulator) Connect(ctx context.Context, sessionID string, _ []byte) (<-chan Event, error) {
	s.mu.Lock()
	s.connects[sessionID]++
	if err, ok := s.failNext[sessionID]; ok {
		delete(s.failNext, sessionID)
		s.mu.Unlock()
		return nil, err
	}
	if prev, ok := s.links[sessionID]; ok {
		prev.stop()
	}
	link := &simLink{
		in:   make(chan Event),
		out:  make(chan Event, 16),
		done: make(chan struct{}),
	}
	s.links[sessionID] = link
	s.mu.Unlock()

	var initial []Event
	if s.AutoCode {
		initial = append(initial, Event{Kind: EventArtifact, Code: "SIM-" + strings.ToUpper(uuid.NewString()[:8])})
	}
	go link.pump(ctx, initial)
	return link.out, nil
}

func (l *simLink) pump(ctx context.Context, initial []Event) {
	defer close(l.out)
	defer l.stop()

	forward := func(ev Event) bool {
		select {
		case l.out <- ev:
			return ev.Kind != EventDisconnected
		case <-l.done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	for _, ev := range initial {
		if !forward(ev) {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case ev := <-l.in:
			if !forward(ev) {
				return
			}
		}
	}
}

func (s *Simulator) Disconnect(sessionID string) error {
	s.mu.Lock()
	link, ok := s.links[sessionID]
	delete(s.links, sessionID)
	s.mu.Unlock()
	if ok {
		link.stop()
	}
	return nil
}

// Emit delivers ev on the session's current link. A disconnect event ends
// the link after it is delivered.
func (s *Simulator) Emit(sessionID string, ev Event) error {
	s.mu.Lock()
	link, ok := s.links[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	select {
	case link.in <- ev:
		if ev.Kind == EventDisconnected {
			s.mu.Lock()
			if s.links[sessionID] == link {
				delete(s.links, sessionID)
			}
			s.mu.Unlock()
		}
		return nil
	case <-link.done:
		return ErrNotConnected
	}
}

// FailNextConnect makes the next Connect for sessionID return err.
func (s *Simulator) FailNextConnect(sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[sessionID] = err
}

// Connects reports how many times Connect was called for sessionID.
func (s *Simulator) Connects(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects[sessionID]
}

// Linked reports whether sessionID currently has an open link.
func (s *Simulator) Linked(sessionID string) bool {
	s.mu.Lock()
	link, ok := s.links[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-link.done:
		return false
	default:
		return true
	}
}
