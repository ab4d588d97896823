// Package prompt holds the prompt lifecycle rules on top of the prompt store:
// prompts are edited and deleted only while inactive, copies start inactive,
// and activation is exclusive per owner and phone.
package prompt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"go.uber.org/zap"
)

type Store interface {
	CreatePrompt(ctx context.Context, p model.Prompt, nowMillis int64) (model.Prompt, error)
	GetPrompt(ctx context.Context, promptID string) (model.Prompt, error)
	ListPrompts(ctx context.Context, ownerID string) ([]model.Prompt, error)
	UpdatePrompt(ctx context.Context, promptID string, mutate func(*model.Prompt) error, nowMillis int64) (model.Prompt, error)
	ActivatePrompt(ctx context.Context, promptID string, nowMillis int64) (model.Prompt, error)
	DeletePrompt(ctx context.Context, promptID string, guard func(model.Prompt) error) error
}

// Patch carries the fields an update may change. Nil fields are left alone.
type Patch struct {
	Text  *string
	Phone *string
}

type Service struct {
	store Store
	log   *zap.Logger
	now   func() int64
}

var errUnchanged = errors.New("prompt unchanged")

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		log:   log.Named("prompt"),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Service) Create(ctx context.Context, ownerID, phone, text string) (model.Prompt, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return model.Prompt{}, apperr.InvalidArgument("phone is required")
	}
	if strings.TrimSpace(text) == "" {
		return model.Prompt{}, apperr.InvalidArgument("text is required")
	}
	p, err := s.store.CreatePrompt(ctx, model.Prompt{
		OwnerID: ownerID,
		Phone:   phone,
		Text:    text,
		Status:  model.PromptInactive,
	}, s.now())
	if err != nil {
		return model.Prompt{}, err
	}
	s.log.Info("prompt created", zap.String("promptId", p.ID), zap.String("ownerId", ownerID), zap.String("phone", phone))
	return p, nil
}

func (s *Service) Get(ctx context.Context, promptID string) (model.Prompt, error) {
	return s.store.GetPrompt(ctx, promptID)
}

// List returns the owner's prompts; an empty ownerID lists every owner.
func (s *Service) List(ctx context.Context, ownerID string) ([]model.Prompt, error) {
	return s.store.ListPrompts(ctx, ownerID)
}

// Copy creates an inactive duplicate of the prompt pointing back at it. The
// source is never modified.
func (s *Service) Copy(ctx context.Context, promptID string) (model.Prompt, error) {
	src, err := s.store.GetPrompt(ctx, promptID)
	if err != nil {
		return model.Prompt{}, err
	}
	origin := src.ID
	p, err := s.store.CreatePrompt(ctx, model.Prompt{
		OwnerID:  src.OwnerID,
		Phone:    src.Phone,
		Text:     src.Text,
		Status:   model.PromptInactive,
		OriginID: &origin,
	}, s.now())
	if err != nil {
		return model.Prompt{}, err
	}
	s.log.Info("prompt copied", zap.String("promptId", p.ID), zap.String("originId", origin))
	return p, nil
}

func (s *Service) Update(ctx context.Context, promptID string, patch Patch) (model.Prompt, error) {
	if patch.Text == nil && patch.Phone == nil {
		return model.Prompt{}, apperr.InvalidArgument("nothing to update")
	}
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return model.Prompt{}, apperr.InvalidArgument("text must not be empty")
	}
	if patch.Phone != nil && strings.TrimSpace(*patch.Phone) == "" {
		return model.Prompt{}, apperr.InvalidArgument("phone must not be empty")
	}
	p, err := s.store.UpdatePrompt(ctx, promptID, func(cur *model.Prompt) error {
		if cur.Status == model.PromptActive {
			return apperr.InvalidState("active prompts cannot be edited")
		}
		if patch.Text != nil {
			cur.Text = *patch.Text
		}
		if patch.Phone != nil {
			cur.Phone = strings.TrimSpace(*patch.Phone)
		}
		return nil
	}, s.now())
	if err != nil {
		return model.Prompt{}, err
	}
	s.log.Info("prompt updated", zap.String("promptId", p.ID))
	return p, nil
}

// Activate makes the prompt the only active one for its owner and phone.
func (s *Service) Activate(ctx context.Context, promptID string) (model.Prompt, error) {
	p, err := s.store.ActivatePrompt(ctx, promptID, s.now())
	if err != nil {
		return model.Prompt{}, err
	}
	s.log.Info("prompt activated", zap.String("promptId", p.ID), zap.String("phone", p.Phone))
	return p, nil
}

// Deactivate is a no-op for an inactive prompt.
func (s *Service) Deactivate(ctx context.Context, promptID string) (model.Prompt, error) {
	p, err := s.store.UpdatePrompt(ctx, promptID, func(cur *model.Prompt) error {
		if cur.Status == model.PromptInactive {
			return errUnchanged
		}
		cur.Status = model.PromptInactive
		return nil
	}, s.now())
	if errors.Is(err, errUnchanged) {
		return p, nil
	}
	if err != nil {
		return model.Prompt{}, err
	}
	s.log.Info("prompt deactivated", zap.String("promptId", p.ID))
	return p, nil
}

func (s *Service) Delete(ctx context.Context, promptID string) error {
	err := s.store.DeletePrompt(ctx, promptID, func(cur model.Prompt) error {
		if cur.Status == model.PromptActive {
			return apperr.InvalidState("active prompts cannot be deleted")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("prompt deleted", zap.String("promptId", promptID))
	return nil
}
