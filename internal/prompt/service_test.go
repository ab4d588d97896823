package prompt

import (
	"context"
	"testing"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(store.NewPromptStore(), zaptest.NewLogger(t))
}

func strPtr(s string) *string { return &s }

func activeCount(t *testing.T, s *Service, ownerID, phone string) int {
	t.Helper()
	list, err := s.List(context.Background(), ownerID)
	require.NoError(t, err)
	n := 0
	for _, p := range list {
		if p.Phone == phone && p.Status == model.PromptActive {
			n++
		}
	}
	return n
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	_, err := s.Create(ctx, "u1", " ", "hello")
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
	_, err = s.Create(ctx, "u1", "p1", "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	p, err := s.Create(ctx, "u1", "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, model.PromptInactive, p.Status)
	assert.Nil(t, p.OriginID)
}

func TestActivate_SwapsSiblings(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	a, _ := s.Create(ctx, "u1", "p1", "a")
	b, _ := s.Create(ctx, "u1", "p1", "b")
	otherOwner, _ := s.Create(ctx, "u2", "p1", "c")

	_, err := s.Activate(ctx, a.ID)
	require.NoError(t, err)
	_, err = s.Activate(ctx, otherOwner.ID)
	require.NoError(t, err)

	activated, err := s.Activate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PromptActive, activated.Status)

	gotA, _ := s.Get(ctx, a.ID)
	assert.Equal(t, model.PromptInactive, gotA.Status)
	assert.Equal(t, 1, activeCount(t, s, "u1", "p1"))
	assert.Equal(t, 1, activeCount(t, s, "u2", "p1"), "other owners keep their own active prompt")

	_, err = s.Activate(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCopy_AlwaysInactive(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	src, _ := s.Create(ctx, "u1", "p1", "hello")
	_, err := s.Activate(ctx, src.ID)
	require.NoError(t, err)

	cp, err := s.Copy(ctx, src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, model.PromptInactive, cp.Status)
	assert.Equal(t, src.Text, cp.Text)
	assert.Equal(t, src.Phone, cp.Phone)
	require.NotNil(t, cp.OriginID)
	assert.Equal(t, src.ID, *cp.OriginID)

	still, _ := s.Get(ctx, src.ID)
	assert.Equal(t, model.PromptActive, still.Status)

	cpOfInactive, err := s.Copy(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PromptInactive, cpOfInactive.Status)
	assert.Equal(t, 1, activeCount(t, s, "u1", "p1"))

	_, err = s.Copy(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdate_OnlyWhileInactive(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	p, _ := s.Create(ctx, "u1", "p1", "hello")

	_, err := s.Update(ctx, p.ID, Patch{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
	_, err = s.Update(ctx, p.ID, Patch{Text: strPtr("")})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	updated, err := s.Update(ctx, p.ID, Patch{Text: strPtr("hi"), Phone: strPtr("p2")})
	require.NoError(t, err)
	assert.Equal(t, "hi", updated.Text)
	assert.Equal(t, "p2", updated.Phone)

	_, err = s.Activate(ctx, p.ID)
	require.NoError(t, err)
	_, err = s.Update(ctx, p.ID, Patch{Text: strPtr("again")})
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	got, _ := s.Get(ctx, p.ID)
	assert.Equal(t, "hi", got.Text)
}

func TestDeactivateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	p, _ := s.Create(ctx, "u1", "p1", "hello")
	_, err := s.Activate(ctx, p.ID)
	require.NoError(t, err)

	err = s.Delete(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	off, err := s.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PromptInactive, off.Status)

	again, err := s.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, off.UpdatedAt, again.UpdatedAt, "no-op must not touch the record")

	require.NoError(t, s.Delete(ctx, p.ID))
	_, err = s.Get(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.Deactivate(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
