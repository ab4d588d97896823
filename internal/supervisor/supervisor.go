// Package supervisor owns the session lifecycle. It runs one pairing task per
// live session, reflects adapter events into the session store and applies the
// reconnect policy. Owner calls (create, deactivate, reactivate, delete) go
// through it so a session never has two pairing sequences at once.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/pairing"
	"go.uber.org/zap"
)

const DefaultReconnectDelay = 3 * time.Second

// SessionStore is the slice of the session store the supervisor writes through.
type SessionStore interface {
	CreateSession(ctx context.Context, ownerID, phone string, nowMillis int64) (model.Session, error)
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	LookupSession(ctx context.Context, sessionID string) (model.Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]model.Session, error)
	ListSessionsByPhone(ctx context.Context, phone string) ([]model.Session, error)
	ListSessionsByState(ctx context.Context, states ...model.SessionState) ([]model.Session, error)
	UpdateSession(ctx context.Context, sessionID string, mutate func(*model.Session) error, nowMillis int64) (model.Session, error)
	DeleteSession(ctx context.Context, sessionID string, guard func(model.Session) error, nowMillis int64) (model.Session, error)
}

type CredentialStore interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, blob []byte) error
	Delete(ctx context.Context, sessionID string) error
}

// Notifier is told about every persisted session change.
type Notifier interface {
	SessionChanged(sess model.Session)
}

type Options struct {
	ReconnectDelay time.Duration
	Renderer       pairing.Renderer
	Notifier       Notifier
	Logger         *zap.Logger
	Now            func() int64
}

type Supervisor struct {
	store    SessionStore
	creds    CredentialStore
	adapter  pairing.Adapter
	renderer pairing.Renderer
	notifier Notifier
	log      *zap.Logger
	now      func() int64
	delay    time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	// halting is set before an owner teardown disconnects the transport, so
	// the closed link is not taken for a drop and redialed.
	halting atomic.Bool
}

// errUnchanged aborts a store mutation that would not change anything.
var errUnchanged = errors.New("session unchanged")

func New(store SessionStore, creds CredentialStore, adapter pairing.Adapter, opts Options) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Renderer == nil {
		opts.Renderer = pairing.PlainRenderer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() int64 { return time.Now().UnixMilli() }
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:      store,
		creds:      creds,
		adapter:    adapter,
		renderer:   opts.Renderer,
		notifier:   opts.Notifier,
		log:        opts.Logger.Named("supervisor"),
		now:        opts.Now,
		delay:      opts.ReconnectDelay,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		tasks:      make(map[string]*task),
	}
}

// Create stores a Pending session and starts pairing it. It fails with
// Conflict when the phone already has a live session. The check and the
// insert are not atomic; two concurrent creates for one phone may both pass.
func (s *Supervisor) Create(ctx context.Context, ownerID, phone string) (model.Session, error) {
	if err := s.ensurePhoneFree(ctx, phone, ""); err != nil {
		return model.Session{}, err
	}
	sess, err := s.store.CreateSession(ctx, ownerID, phone, s.now())
	if err != nil {
		return model.Session{}, err
	}
	s.log.Info("session created", zap.String("sessionId", sess.ID), zap.String("ownerId", ownerID), zap.String("phone", phone))
	s.notify(sess)
	s.start(sess.ID)
	return sess, nil
}

func (s *Supervisor) Get(ctx context.Context, sessionID string) (model.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// Lookup also returns deleted sessions, so callers can treat a repeated
// delete as a no-op.
func (s *Supervisor) Lookup(ctx context.Context, sessionID string) (model.Session, error) {
	return s.store.LookupSession(ctx, sessionID)
}

// List returns the owner's sessions; an empty ownerID lists every owner.
func (s *Supervisor) List(ctx context.Context, ownerID string) ([]model.Session, error) {
	return s.store.ListSessions(ctx, ownerID)
}

// Deactivate moves a Connected session to Inactive and tears its transport
// down. Deactivating an Inactive session returns it unchanged.
func (s *Supervisor) Deactivate(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	switch sess.State {
	case model.SessionInactive:
		return sess, nil
	case model.SessionConnected:
	default:
		return model.Session{}, apperr.Newf(apperr.KindInvalidState, "session is %s; only connected sessions can be deactivated", sess.State)
	}

	s.halt(sessionID)

	updated, err := s.store.UpdateSession(ctx, sessionID, func(cur *model.Session) error {
		switch cur.State {
		case model.SessionInactive:
			return errUnchanged
		case model.SessionConnected:
			cur.State = model.SessionInactive
			cur.PairingArtifact = nil
			return nil
		default:
			return apperr.Newf(apperr.KindInvalidState, "session is %s; only connected sessions can be deactivated", cur.State)
		}
	}, s.now())
	if errors.Is(err, errUnchanged) {
		return updated, nil
	}
	if err != nil {
		return model.Session{}, err
	}
	s.log.Info("session deactivated", zap.String("sessionId", sessionID))
	s.notify(updated)
	return updated, nil
}

// Reactivate moves an Inactive session back to Pending and starts a fresh
// pairing sequence. It fails with Conflict when another session for the
// phone is live.
func (s *Supervisor) Reactivate(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if sess.State != model.SessionInactive {
		return model.Session{}, apperr.Newf(apperr.KindInvalidState, "session is %s; only inactive sessions can be reactivated", sess.State)
	}
	if err := s.ensurePhoneFree(ctx, sess.Phone, sess.ID); err != nil {
		return model.Session{}, err
	}

	// A prior sequence must be gone before the new one starts.
	s.stop(sessionID)

	updated, err := s.store.UpdateSession(ctx, sessionID, func(cur *model.Session) error {
		if cur.State != model.SessionInactive {
			return apperr.Newf(apperr.KindInvalidState, "session is %s; only inactive sessions can be reactivated", cur.State)
		}
		cur.State = model.SessionPending
		cur.PairingArtifact = nil
		return nil
	}, s.now())
	if err != nil {
		return model.Session{}, err
	}
	s.log.Info("session reactivated", zap.String("sessionId", sessionID))
	s.notify(updated)
	s.start(sessionID)
	return updated, nil
}

// Delete removes a session that is not Connected, cancels its pairing task
// and drops its credentials. Deleting a deleted session is a no-op.
func (s *Supervisor) Delete(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.store.LookupSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Deleted {
		return sess, nil
	}
	if sess.State == model.SessionConnected {
		return model.Session{}, apperr.InvalidState("connected sessions must be deactivated before deletion")
	}

	s.halt(sessionID)

	deleted, err := s.store.DeleteSession(ctx, sessionID, func(cur model.Session) error {
		if cur.State == model.SessionConnected {
			return apperr.InvalidState("connected sessions must be deactivated before deletion")
		}
		return nil
	}, s.now())
	if err != nil {
		// The pairing task may have linked the session between the check and
		// the stop; it keeps running.
		if apperr.Is(err, apperr.KindInvalidState) {
			s.start(sessionID)
		}
		return model.Session{}, err
	}

	if err := s.creds.Delete(ctx, sessionID); err != nil {
		s.log.Warn("delete credentials failed", zap.String("sessionId", sessionID), zap.Error(err))
	}
	s.log.Info("session deleted", zap.String("sessionId", sessionID))
	s.notify(deleted)
	return deleted, nil
}

// Resume starts a pairing task for every stored Pending or Connected session.
// It returns how many tasks were started.
func (s *Supervisor) Resume(ctx context.Context) (int, error) {
	live, err := s.store.ListSessionsByState(ctx, model.SessionPending, model.SessionConnected)
	if err != nil {
		return 0, err
	}
	for _, sess := range live {
		s.start(sess.ID)
	}
	s.log.Info("sessions resumed", zap.Int("count", len(live)))
	return len(live), nil
}

// Running reports whether sessionID has a pairing task.
func (s *Supervisor) Running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[sessionID]
	return ok
}

// Close cancels every pairing task and waits for them to exit. Session
// states are left as they are so the next process can resume them.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()
	s.wg.Wait()
}

func (s *Supervisor) ensurePhoneFree(ctx context.Context, phone, exceptID string) error {
	sessions, err := s.store.ListSessionsByPhone(ctx, phone)
	if err != nil {
		return err
	}
	for _, other := range sessions {
		if other.ID != exceptID && other.State.Live() {
			return apperr.Newf(apperr.KindConflict, "phone %s already has a live session", phone)
		}
	}
	return nil
}

func (s *Supervisor) start(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.tasks[sessionID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[sessionID] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer s.forget(sessionID, t)
		s.run(ctx, sessionID, t)
	}()
}

func (s *Supervisor) forget(sessionID string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[sessionID] == t {
		delete(s.tasks, sessionID)
	}
	t.cancel()
}

// stop cancels the session's task and waits for it to exit.
func (s *Supervisor) stop(sessionID string) {
	s.mu.Lock()
	t := s.tasks[sessionID]
	delete(s.tasks, sessionID)
	s.mu.Unlock()

	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// halt tells the adapter to end the session's transport while the task is
// still running, then stops the task. Cancelling first would close the link
// without the adapter ever sending its stop.
func (s *Supervisor) halt(sessionID string) {
	s.mu.Lock()
	t := s.tasks[sessionID]
	delete(s.tasks, sessionID)
	s.mu.Unlock()

	if t != nil {
		t.halting.Store(true)
	}
	s.disconnect(sessionID)
	if t != nil {
		t.cancel()
		<-t.done
	}
}

func (s *Supervisor) disconnect(sessionID string) {
	if err := s.adapter.Disconnect(sessionID); err != nil && !errors.Is(err, pairing.ErrNotConnected) {
		s.log.Warn("disconnect failed", zap.String("sessionId", sessionID), zap.Error(err))
	}
}

func (s *Supervisor) notify(sess model.Session) {
	if s.notifier != nil {
		s.notifier.SessionChanged(sess)
	}
}
