package billing

import (
	"context"
	"testing"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPaymentMethod(t *testing.T) {
	ctx := context.Background()
	s := NewService(store.NewCustomerStore(), zaptest.NewLogger(t))

	ok, err := s.HasActivePaymentMethod(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.SetPaymentMethod(ctx, "u1", "  ")
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	c, err := s.SetPaymentMethod(ctx, "u1", "pm_123")
	require.NoError(t, err)
	assert.Equal(t, "pm_123", c.PaymentMethodID)

	ok, err = s.HasActivePaymentMethod(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChargeAndBalance(t *testing.T) {
	ctx := context.Background()
	s := NewService(store.NewCustomerStore(), zaptest.NewLogger(t))

	bal, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.TokensRemaining)

	_, err = s.Charge(ctx, "u1", 100)
	assert.True(t, apperr.Is(err, apperr.KindPaymentRequired))
	_, err = s.Charge(ctx, "u1", 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	_, err = s.SetPaymentMethod(ctx, "u1", "pm_123")
	require.NoError(t, err)
	_, err = s.Charge(ctx, "u1", 100)
	require.NoError(t, err)
	c, err := s.Charge(ctx, "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), c.TokensRemaining)
	assert.NotZero(t, c.LastChargeAt)

	bal, err = s.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), bal.TokensRemaining)

	customers, err := s.Customers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}
