// Package billing is the customer-store side of payments: it records the
// payment method identifier handed back by the provider, answers whether an
// owner may create sessions, and keeps the token balance.
package billing

import (
	"context"
	"strings"
	"time"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"go.uber.org/zap"
)

type Store interface {
	GetCustomer(ctx context.Context, customerID string) (model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	SetPaymentMethod(ctx context.Context, customerID, paymentMethodID string, nowMillis int64) (model.Customer, error)
	CreditTokens(ctx context.Context, customerID string, tokens int64, nowMillis int64) (model.Customer, error)
}

type Service struct {
	store Store
	log   *zap.Logger
	now   func() int64
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		log:   log.Named("billing"),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// HasActivePaymentMethod is false for owners without a customer record.
func (s *Service) HasActivePaymentMethod(ctx context.Context, ownerID string) (bool, error) {
	c, err := s.store.GetCustomer(ctx, ownerID)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.HasPaymentMethod(), nil
}

func (s *Service) SetPaymentMethod(ctx context.Context, ownerID, paymentMethodID string) (model.Customer, error) {
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return model.Customer{}, apperr.InvalidArgument("paymentMethodId is required")
	}
	c, err := s.store.SetPaymentMethod(ctx, ownerID, paymentMethodID, s.now())
	if err != nil {
		return model.Customer{}, err
	}
	s.log.Info("payment method set", zap.String("ownerId", ownerID))
	return c, nil
}

// Balance reports a zero balance for owners that never paid.
func (s *Service) Balance(ctx context.Context, ownerID string) (model.Customer, error) {
	c, err := s.store.GetCustomer(ctx, ownerID)
	if apperr.Is(err, apperr.KindNotFound) {
		return model.Customer{ID: ownerID}, nil
	}
	return c, err
}

// Charge credits tokens after the provider accepted a charge.
func (s *Service) Charge(ctx context.Context, ownerID string, tokens int64) (model.Customer, error) {
	if tokens <= 0 {
		return model.Customer{}, apperr.InvalidArgument("tokens must be positive")
	}
	ok, err := s.HasActivePaymentMethod(ctx, ownerID)
	if err != nil {
		return model.Customer{}, err
	}
	if !ok {
		return model.Customer{}, apperr.PaymentRequired("add a payment method before buying tokens")
	}
	c, err := s.store.CreditTokens(ctx, ownerID, tokens, s.now())
	if err != nil {
		return model.Customer{}, err
	}
	s.log.Info("tokens credited", zap.String("ownerId", ownerID), zap.Int64("tokens", tokens))
	return c, nil
}

func (s *Service) Customers(ctx context.Context) ([]model.Customer, error) {
	return s.store.ListCustomers(ctx)
}
