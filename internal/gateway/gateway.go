// Package gateway coordinates the session supervisor, the prompt store and
// the payment lookup. It keeps no state of its own: every cross-store rule is
// a read of the dependency immediately followed by the write, so concurrent
// requests can still slip between the two. That window is accepted.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/prompt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 5 * time.Second

	tracerName = "github.com/marcelmariani/AI-whatssapp-agent/internal/gateway"

	depSessions = "sessions"
	depPrompts  = "prompts"
	depPayments = "payments"
)

type Sessions interface {
	Create(ctx context.Context, ownerID, phone string) (model.Session, error)
	Get(ctx context.Context, sessionID string) (model.Session, error)
	Lookup(ctx context.Context, sessionID string) (model.Session, error)
	List(ctx context.Context, ownerID string) ([]model.Session, error)
	Deactivate(ctx context.Context, sessionID string) (model.Session, error)
	Reactivate(ctx context.Context, sessionID string) (model.Session, error)
	Delete(ctx context.Context, sessionID string) (model.Session, error)
}

type Prompts interface {
	Create(ctx context.Context, ownerID, phone, text string) (model.Prompt, error)
	Get(ctx context.Context, promptID string) (model.Prompt, error)
	List(ctx context.Context, ownerID string) ([]model.Prompt, error)
	Copy(ctx context.Context, promptID string) (model.Prompt, error)
	Update(ctx context.Context, promptID string, patch prompt.Patch) (model.Prompt, error)
	Activate(ctx context.Context, promptID string) (model.Prompt, error)
	Deactivate(ctx context.Context, promptID string) (model.Prompt, error)
	Delete(ctx context.Context, promptID string) error
}

type Payments interface {
	HasActivePaymentMethod(ctx context.Context, ownerID string) (bool, error)
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	OwnerID string
	Admin   bool
}

type Options struct {
	// Timeout bounds each collaborator call.
	Timeout time.Duration
	Logger  *zap.Logger
	Tracer  trace.Tracer
}

type Gateway struct {
	sessions Sessions
	prompts  Prompts
	payments Payments
	timeout  time.Duration
	log      *zap.Logger
	tracer   trace.Tracer
}

func New(sessions Sessions, prompts Prompts, payments Payments, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &Gateway{
		sessions: sessions,
		prompts:  prompts,
		payments: payments,
		timeout:  opts.Timeout,
		log:      opts.Logger.Named("gateway"),
		tracer:   opts.Tracer,
	}
}

// call runs fn under the collaborator timeout. Errors that already carry a
// kind pass through; anything else means the collaborator itself failed.
func call[T any](ctx context.Context, g *Gateway, dependency string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := fn(ctx)
	if err == nil {
		return out, nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return out, err
	}
	g.log.Warn("collaborator call failed", zap.String("dependency", dependency), zap.Error(err))
	return out, apperr.Wrap(apperr.KindUpstreamUnavailable, dependency+" unavailable", err)
}

func (g *Gateway) span(ctx context.Context, name string, caller Caller, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("owner.id", caller.OwnerID), attribute.Bool("caller.admin", caller.Admin))
	return g.tracer.Start(ctx, "gateway."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

func owns(caller Caller, ownerID string) bool {
	return caller.Admin || caller.OwnerID == ownerID
}

// Sessions

// CreateSession requires a payment method before the supervisor is asked
// to create anything.
func (g *Gateway) CreateSession(ctx context.Context, caller Caller, phone string) (_ model.Session, err error) {
	phone = strings.TrimSpace(phone)
	ctx, span := g.span(ctx, "CreateSession", caller, attribute.String("phone", phone))
	defer func() { finish(span, err) }()

	if phone == "" {
		return model.Session{}, apperr.InvalidArgument("phone is required")
	}
	hasPayment, err := call(ctx, g, depPayments, func(ctx context.Context) (bool, error) {
		return g.payments.HasActivePaymentMethod(ctx, caller.OwnerID)
	})
	if err != nil {
		return model.Session{}, err
	}
	if !hasPayment {
		return model.Session{}, apperr.PaymentRequired("add a payment method before creating a session")
	}
	return call(ctx, g, depSessions, func(ctx context.Context) (model.Session, error) {
		return g.sessions.Create(ctx, caller.OwnerID, phone)
	})
}

func (g *Gateway) GetSession(ctx context.Context, caller Caller, sessionID string) (_ model.Session, err error) {
	ctx, span := g.span(ctx, "GetSession", caller, attribute.String("session.id", sessionID))
	defer func() { finish(span, err) }()

	return g.ownedSession(ctx, caller, sessionID)
}

func (g *Gateway) ownedSession(ctx context.Context, caller Caller, sessionID string) (model.Session, error) {
	sess, err := call(ctx, g, depSessions, func(ctx context.Context) (model.Session, error) {
		return g.sessions.Get(ctx, sessionID)
	})
	if err != nil {
		return model.Session{}, err
	}
	if !owns(caller, sess.OwnerID) {
		return model.Session{}, apperr.NotFound("session not found")
	}
	return sess, nil
}

// ListSessions is always scoped to the caller, admins included.
func (g *Gateway) ListSessions(ctx context.Context, caller Caller) (_ []model.Session, err error) {
	ctx, span := g.span(ctx, "ListSessions", caller)
	defer func() { finish(span, err) }()

	return call(ctx, g, depSessions, func(ctx context.Context) ([]model.Session, error) {
		return g.sessions.List(ctx, caller.OwnerID)
	})
}

// ListAllSessions lists every owner's sessions, or one owner's when ownerID
// is set. Admin only.
func (g *Gateway) ListAllSessions(ctx context.Context, caller Caller, ownerID string) (_ []model.Session, err error) {
	ctx, span := g.span(ctx, "ListAllSessions", caller, attribute.String("filter.owner.id", ownerID))
	defer func() { finish(span, err) }()

	if !caller.Admin {
		return nil, apperr.New(apperr.KindForbidden, "admin role required")
	}
	return call(ctx, g, depSessions, func(ctx context.Context) ([]model.Session, error) {
		return g.sessions.List(ctx, ownerID)
	})
}

func (g *Gateway) DeactivateSession(ctx context.Context, caller Caller, sessionID string) (_ model.Session, err error) {
	ctx, span := g.span(ctx, "DeactivateSession", caller, attribute.String("session.id", sessionID))
	defer func() { finish(span, err) }()

	if _, err := g.ownedSession(ctx, caller, sessionID); err != nil {
		return model.Session{}, err
	}
	return call(ctx, g, depSessions, func(ctx context.Context) (model.Session, error) {
		return g.sessions.Deactivate(ctx, sessionID)
	})
}

func (g *Gateway) ReactivateSession(ctx context.Context, caller Caller, sessionID string) (_ model.Session, err error) {
	ctx, span := g.span(ctx, "ReactivateSession", caller, attribute.String("session.id", sessionID))
	defer func() { finish(span, err) }()

	if _, err := g.ownedSession(ctx, caller, sessionID); err != nil {
		return model.Session{}, err
	}
	return call(ctx, g, depSessions, func(ctx context.Context) (model.Session, error) {
		return g.sessions.Reactivate(ctx, sessionID)
	})
}

// DeleteSession checks ownership against the tombstone too, so a repeated
// delete by the owner succeeds.
func (g *Gateway) DeleteSession(ctx context.Context, caller Caller, sessionID string) (err error) {
	ctx, span := g.span(ctx, "DeleteSession", caller, attribute.String("session.id", sessionID))
	defer func() { finish(span, err) }()

	sess, err := call(ctx, g, depSessions, func(ctx context.Context) (model.Session, error) {
		return g.sessions.Lookup(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	if !owns(caller, sess.OwnerID) {
		return apperr.NotFound("session not found")
	}
	_, err = call(ctx, g, depSessions, func(ctx context.Context) (model.Session, error) {
		return g.sessions.Delete(ctx, sessionID)
	})
	return err
}

// requireConnected fails with PreconditionFailed unless the owner has a
// Connected session for phone right now.
func (g *Gateway) requireConnected(ctx context.Context, ownerID, phone string) error {
	sessions, err := call(ctx, g, depSessions, func(ctx context.Context) ([]model.Session, error) {
		return g.sessions.List(ctx, ownerID)
	})
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess.Phone == phone && sess.State == model.SessionConnected {
			return nil
		}
	}
	return apperr.Newf(apperr.KindPreconditionFailed, "connect a session for %s first", phone)
}

// Prompts

func (g *Gateway) CreatePrompt(ctx context.Context, caller Caller, phone, text string) (_ model.Prompt, err error) {
	phone = strings.TrimSpace(phone)
	ctx, span := g.span(ctx, "CreatePrompt", caller, attribute.String("phone", phone))
	defer func() { finish(span, err) }()

	if phone == "" {
		return model.Prompt{}, apperr.InvalidArgument("phone is required")
	}
	if strings.TrimSpace(text) == "" {
		return model.Prompt{}, apperr.InvalidArgument("text is required")
	}
	if err := g.requireConnected(ctx, caller.OwnerID, phone); err != nil {
		return model.Prompt{}, err
	}
	return call(ctx, g, depPrompts, func(ctx context.Context) (model.Prompt, error) {
		return g.prompts.Create(ctx, caller.OwnerID, phone, text)
	})
}

func (g *Gateway) GetPrompt(ctx context.Context, caller Caller, promptID string) (_ model.Prompt, err error) {
	ctx, span := g.span(ctx, "GetPrompt", caller, attribute.String("prompt.id", promptID))
	defer func() { finish(span, err) }()

	return g.ownedPrompt(ctx, caller, promptID)
}

func (g *Gateway) ownedPrompt(ctx context.Context, caller Caller, promptID string) (model.Prompt, error) {
	p, err := call(ctx, g, depPrompts, func(ctx context.Context) (model.Prompt, error) {
		return g.prompts.Get(ctx, promptID)
	})
	if err != nil {
		return model.Prompt{}, err
	}
	if !owns(caller, p.OwnerID) {
		return model.Prompt{}, apperr.NotFound("prompt not found")
	}
	return p, nil
}

func (g *Gateway) ListPrompts(ctx context.Context, caller Caller) (_ []model.Prompt, err error) {
	ctx, span := g.span(ctx, "ListPrompts", caller)
	defer func() { finish(span, err) }()

	return call(ctx, g, depPrompts, func(ctx context.Context) ([]model.Prompt, error) {
		return g.prompts.List(ctx, caller.OwnerID)
	})
}

// ListAllPrompts is the admin view; an empty ownerID lists every owner.
func (g *Gateway) ListAllPrompts(ctx context.Context, caller Caller, ownerID string) (_ []model.Prompt, err error) {
	ctx, span := g.span(ctx, "ListAllPrompts", caller, attribute.String("filter.owner.id", ownerID))
	defer func() { finish(span, err) }()

	if !caller.Admin {
		return nil, apperr.New(apperr.KindForbidden, "admin role required")
	}
	return call(ctx, g, depPrompts, func(ctx context.Context) ([]model.Prompt, error) {
		return g.prompts.List(ctx, ownerID)
	})
}

func (g *Gateway) CopyPrompt(ctx context.Context, caller Caller, promptID string) (_ model.Prompt, err error) {
	ctx, span := g.span(ctx, "CopyPrompt", caller, attribute.String("prompt.id", promptID))
	defer func() { finish(span, err) }()

	if _, err := g.ownedPrompt(ctx, caller, promptID); err != nil {
		return model.Prompt{}, err
	}
	return call(ctx, g, depPrompts, func(ctx context.Context) (model.Prompt, error) {
		return g.prompts.Copy(ctx, promptID)
	})
}

func (g *Gateway) UpdatePrompt(ctx context.Context, caller Caller, promptID string, patch prompt.Patch) (_ model.Prompt, err error) {
	ctx, span := g.span(ctx, "UpdatePrompt", caller, attribute.String("prompt.id", promptID))
	defer func() { finish(span, err) }()

	if _, err := g.ownedPrompt(ctx, caller, promptID); err != nil {
		return model.Prompt{}, err
	}
	return call(ctx, g, depPrompts, func(ctx context.Context) (model.Prompt, error) {
		return g.prompts.Update(ctx, promptID, patch)
	})
}

// ActivatePrompt requires a Connected session for the prompt's owner and
// phone before the prompt store swaps the active prompt.
func (g *Gateway) ActivatePrompt(ctx context.Context, caller Caller, promptID string) (_ model.Prompt, err error) {
	ctx, span := g.span(ctx, "ActivatePrompt", caller, attribute.String("prompt.id", promptID))
	defer func() { finish(span, err) }()

	p, err := g.ownedPrompt(ctx, caller, promptID)
	if err != nil {
		return model.Prompt{}, err
	}
	if err := g.requireConnected(ctx, p.OwnerID, p.Phone); err != nil {
		return model.Prompt{}, err
	}
	return call(ctx, g, depPrompts, func(ctx context.Context) (model.Prompt, error) {
		return g.prompts.Activate(ctx, promptID)
	})
}

func (g *Gateway) DeactivatePrompt(ctx context.Context, caller Caller, promptID string) (_ model.Prompt, err error) {
	ctx, span := g.span(ctx, "DeactivatePrompt", caller, attribute.String("prompt.id", promptID))
	defer func() { finish(span, err) }()

	if _, err := g.ownedPrompt(ctx, caller, promptID); err != nil {
		return model.Prompt{}, err
	}
	return call(ctx, g, depPrompts, func(ctx context.Context) (model.Prompt, error) {
		return g.prompts.Deactivate(ctx, promptID)
	})
}

func (g *Gateway) DeletePrompt(ctx context.Context, caller Caller, promptID string) (err error) {
	ctx, span := g.span(ctx, "DeletePrompt", caller, attribute.String("prompt.id", promptID))
	defer func() { finish(span, err) }()

	if _, err := g.ownedPrompt(ctx, caller, promptID); err != nil {
		return err
	}
	_, err = call(ctx, g, depPrompts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.prompts.Delete(ctx, promptID)
	})
	return err
}
