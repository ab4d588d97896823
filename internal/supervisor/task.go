package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/pairing"
	"go.uber.org/zap"
)

// run drives one session until the link ends for good or ctx is cancelled.
func (s *Supervisor) run(ctx context.Context, sessionID string, t *task) {
	log := s.log.With(zap.String("sessionId", sessionID))
	policy := backoff.NewConstantBackOff(s.delay)

	for {
		if !s.connectOnce(ctx, sessionID, log) || t.halting.Load() {
			return
		}
		delay := policy.NextBackOff()
		log.Info("reconnecting", zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if t.halting.Load() {
			return
		}
	}
}

// connectOnce runs a single link and reports whether to reconnect.
func (s *Supervisor) connectOnce(ctx context.Context, sessionID string, log *zap.Logger) bool {
	creds, err := s.creds.Load(ctx, sessionID)
	if err != nil {
		return s.setupFailed(ctx, sessionID, log, "load credentials", err)
	}
	events, err := s.adapter.Connect(ctx, sessionID, creds)
	if err != nil {
		return s.setupFailed(ctx, sessionID, log, "connect", err)
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return false
				}
				log.Warn("link closed without disconnect event")
				return true
			}
			switch ev.Kind {
			case pairing.EventArtifact:
				s.storeArtifact(ctx, sessionID, ev.Code, log)
			case pairing.EventLinked:
				s.markConnected(ctx, sessionID, log)
			case pairing.EventCredentials:
				if err := s.creds.Save(ctx, sessionID, ev.Credentials); err != nil {
					log.Warn("save credentials failed", zap.Error(err))
				}
			case pairing.EventDisconnected:
				return s.disconnected(ctx, sessionID, ev.Reason, log)
			}
		}
	}
}

// setupFailed marks a Pending session Failed. A session that was already
// Connected keeps its state and is retried.
func (s *Supervisor) setupFailed(ctx context.Context, sessionID string, log *zap.Logger, step string, cause error) bool {
	if ctx.Err() != nil {
		return false
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("session vanished during setup", zap.Error(err))
		return false
	}
	if sess.State == model.SessionConnected {
		log.Warn("reconnect setup failed", zap.String("step", step), zap.Error(cause))
		return true
	}
	log.Error("pairing setup failed", zap.String("step", step), zap.Error(cause))
	s.markFailed(ctx, sessionID, log)
	return false
}

func (s *Supervisor) disconnected(ctx context.Context, sessionID string, reason pairing.DisconnectReason, log *zap.Logger) bool {
	if reason.Recoverable() {
		log.Warn("link lost", zap.String("reason", string(reason)))
		return true
	}
	// Logout leaves a Connected session Connected until the owner deactivates
	// it. Before any link there is nothing left to wait on.
	log.Info("remote logout", zap.String("reason", string(reason)))
	s.markFailed(ctx, sessionID, log)
	return false
}

func (s *Supervisor) storeArtifact(ctx context.Context, sessionID, code string, log *zap.Logger) {
	rendered, err := s.renderer.Render(code)
	if err != nil {
		log.Warn("render pairing code failed", zap.Error(err))
		return
	}
	s.update(ctx, sessionID, log, func(cur *model.Session) error {
		if cur.State != model.SessionPending {
			return errUnchanged
		}
		cur.PairingArtifact = &rendered
		return nil
	})
}

func (s *Supervisor) markConnected(ctx context.Context, sessionID string, log *zap.Logger) {
	s.update(ctx, sessionID, log, func(cur *model.Session) error {
		if cur.State == model.SessionConnected && cur.PairingArtifact == nil {
			return errUnchanged
		}
		if !cur.State.Live() {
			return errUnchanged
		}
		cur.State = model.SessionConnected
		cur.PairingArtifact = nil
		return nil
	})
}

// markFailed only touches Pending sessions.
func (s *Supervisor) markFailed(ctx context.Context, sessionID string, log *zap.Logger) {
	s.update(ctx, sessionID, log, func(cur *model.Session) error {
		if cur.State != model.SessionPending {
			return errUnchanged
		}
		cur.State = model.SessionFailed
		cur.PairingArtifact = nil
		return nil
	})
}

func (s *Supervisor) update(ctx context.Context, sessionID string, log *zap.Logger, mutate func(*model.Session) error) {
	sess, err := s.store.UpdateSession(ctx, sessionID, mutate, s.now())
	if errors.Is(err, errUnchanged) {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("session update failed", zap.Error(err))
		}
		return
	}
	log.Info("session state", zap.String("state", string(sess.State)))
	s.notify(sess)
}
