// Package store holds the in-memory implementations of the session, prompt
// and customer stores. Each store owns its own lock and records; nothing is
// shared between them. The sqlite subpackage provides durable equivalents
// with the same method set.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
)

type SessionStore struct {
	mu           sync.RWMutex
	sessionsByID map[string]model.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessionsByID: make(map[string]model.Session)}
}

func (s *SessionStore) CreateSession(ctx context.Context, ownerID, phone string, nowMillis int64) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}
	if ownerID == "" {
		return model.Session{}, apperr.InvalidArgument("missing owner id")
	}
	if phone == "" {
		return model.Session{}, apperr.InvalidArgument("missing phone")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := model.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Phone:     phone,
		State:     model.SessionPending,
		CreatedAt: nowMillis,
		UpdatedAt: nowMillis,
	}
	s.sessionsByID[sess.ID] = sess
	return sess, nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.LookupSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Deleted {
		return model.Session{}, apperr.NotFound("session not found")
	}
	return sess, nil
}

// LookupSession also returns soft-deleted sessions.
func (s *SessionStore) LookupSession(ctx context.Context, sessionID string) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByID[sessionID]
	if !ok {
		return model.Session{}, apperr.NotFound("session not found")
	}
	return sess, nil
}

// ListSessions returns the owner's sessions, or every session when ownerID
// is empty, most recently updated first.
func (s *SessionStore) ListSessions(ctx context.Context, ownerID string) ([]model.Session, error) {
	return s.filter(ctx, func(sess model.Session) bool {
		return ownerID == "" || sess.OwnerID == ownerID
	})
}

func (s *SessionStore) ListSessionsByPhone(ctx context.Context, phone string) ([]model.Session, error) {
	return s.filter(ctx, func(sess model.Session) bool { return sess.Phone == phone })
}

func (s *SessionStore) ListSessionsByState(ctx context.Context, states ...model.SessionState) ([]model.Session, error) {
	return s.filter(ctx, func(sess model.Session) bool {
		for _, st := range states {
			if sess.State == st {
				return true
			}
		}
		return false
	})
}

func (s *SessionStore) filter(ctx context.Context, keep func(model.Session) bool) ([]model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Session, 0)
	for _, sess := range s.sessionsByID {
		if !sess.Deleted && keep(sess) {
			result = append(result, sess)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt == result[j].UpdatedAt {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt > result[j].UpdatedAt
	})
	return result, nil
}

// UpdateSession applies mutate to the stored record as one atomic write.
// When mutate fails nothing is written and its error is returned.
func (s *SessionStore) UpdateSession(ctx context.Context, sessionID string, mutate func(*model.Session) error, nowMillis int64) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByID[sessionID]
	if !ok || sess.Deleted {
		return model.Session{}, apperr.NotFound("session not found")
	}
	next := sess
	if err := mutate(&next); err != nil {
		return sess, err
	}
	next.ID = sess.ID
	next.UpdatedAt = nowMillis
	s.sessionsByID[sessionID] = next
	return next, nil
}

// DeleteSession soft-deletes the session after guard accepts it. Deleting an
// already deleted session returns it unchanged.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string, guard func(model.Session) error, nowMillis int64) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByID[sessionID]
	if !ok {
		return model.Session{}, apperr.NotFound("session not found")
	}
	if sess.Deleted {
		return sess, nil
	}
	if guard != nil {
		if err := guard(sess); err != nil {
			return sess, err
		}
	}
	sess.Deleted = true
	sess.PairingArtifact = nil
	sess.UpdatedAt = nowMillis
	s.sessionsByID[sessionID] = sess
	return sess, nil
}

type PromptStore struct {
	mu          sync.RWMutex
	promptsByID map[string]model.Prompt
}

func NewPromptStore() *PromptStore {
	return &PromptStore{promptsByID: make(map[string]model.Prompt)}
}

func (s *PromptStore) CreatePrompt(ctx context.Context, p model.Prompt, nowMillis int64) (model.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return model.Prompt{}, err
	}
	if p.OwnerID == "" || p.Phone == "" || p.Text == "" {
		return model.Prompt{}, apperr.InvalidArgument("owner, phone and text are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = model.PromptInactive
	}
	p.CreatedAt = nowMillis
	p.UpdatedAt = nowMillis
	s.promptsByID[p.ID] = p
	return p, nil
}

func (s *PromptStore) GetPrompt(ctx context.Context, promptID string) (model.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return model.Prompt{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.promptsByID[promptID]
	if !ok {
		return model.Prompt{}, apperr.NotFound("prompt not found")
	}
	return p, nil
}

// ListPrompts returns the owner's prompts, or all prompts when ownerID is
// empty, most recently updated first.
func (s *PromptStore) ListPrompts(ctx context.Context, ownerID string) ([]model.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Prompt, 0)
	for _, p := range s.promptsByID {
		if ownerID == "" || p.OwnerID == ownerID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt == result[j].UpdatedAt {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt > result[j].UpdatedAt
	})
	return result, nil
}

func (s *PromptStore) UpdatePrompt(ctx context.Context, promptID string, mutate func(*model.Prompt) error, nowMillis int64) (model.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return model.Prompt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promptsByID[promptID]
	if !ok {
		return model.Prompt{}, apperr.NotFound("prompt not found")
	}
	next := p
	if err := mutate(&next); err != nil {
		return p, err
	}
	next.ID = p.ID
	next.UpdatedAt = nowMillis
	s.promptsByID[promptID] = next
	return next, nil
}

// ActivatePrompt marks every other active prompt of the same owner and phone
// inactive and the target active, under one lock.
func (s *PromptStore) ActivatePrompt(ctx context.Context, promptID string, nowMillis int64) (model.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return model.Prompt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.promptsByID[promptID]
	if !ok {
		return model.Prompt{}, apperr.NotFound("prompt not found")
	}
	for id, p := range s.promptsByID {
		if id == promptID || p.Status != model.PromptActive {
			continue
		}
		if p.OwnerID == target.OwnerID && p.Phone == target.Phone {
			p.Status = model.PromptInactive
			p.UpdatedAt = nowMillis
			s.promptsByID[id] = p
		}
	}
	target.Status = model.PromptActive
	target.UpdatedAt = nowMillis
	s.promptsByID[promptID] = target
	return target, nil
}

func (s *PromptStore) DeletePrompt(ctx context.Context, promptID string, guard func(model.Prompt) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promptsByID[promptID]
	if !ok {
		return apperr.NotFound("prompt not found")
	}
	if guard != nil {
		if err := guard(p); err != nil {
			return err
		}
	}
	delete(s.promptsByID, promptID)
	return nil
}

type CustomerStore struct {
	mu            sync.RWMutex
	customersByID map[string]model.Customer
}

func NewCustomerStore() *CustomerStore {
	return &CustomerStore{customersByID: make(map[string]model.Customer)}
}

func (s *CustomerStore) GetCustomer(ctx context.Context, customerID string) (model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return model.Customer{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[customerID]
	if !ok {
		return model.Customer{}, apperr.NotFound("customer not found")
	}
	return c, nil
}

func (s *CustomerStore) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *CustomerStore) SetPaymentMethod(ctx context.Context, customerID, paymentMethodID string, nowMillis int64) (model.Customer, error) {
	return s.upsert(ctx, customerID, nowMillis, func(c *model.Customer) {
		c.PaymentMethodID = paymentMethodID
	})
}

func (s *CustomerStore) CreditTokens(ctx context.Context, customerID string, tokens int64, nowMillis int64) (model.Customer, error) {
	return s.upsert(ctx, customerID, nowMillis, func(c *model.Customer) {
		c.TokensRemaining += tokens
		c.LastChargeAt = nowMillis
	})
}

func (s *CustomerStore) upsert(ctx context.Context, customerID string, nowMillis int64, mutate func(*model.Customer)) (model.Customer, error) {
	if err := ctx.Err(); err != nil {
		return model.Customer{}, err
	}
	if customerID == "" {
		return model.Customer{}, apperr.InvalidArgument("missing customer id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customersByID[customerID]
	if !ok {
		c = model.Customer{ID: customerID, CreatedAt: nowMillis}
	}
	mutate(&c)
	c.UpdatedAt = nowMillis
	s.customersByID[customerID] = c
	return c, nil
}
