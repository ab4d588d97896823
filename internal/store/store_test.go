package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
)

func TestSessionStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := int64(1000)

	sess, err := s.CreateSession(ctx, "u1", "5511999999999", now)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.State != model.SessionPending {
		t.Fatalf("expected pending, got %q", sess.State)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if diff := cmp.Diff(sess, got); diff != "" {
		t.Fatalf("stored session mismatch (-want +got):\n%s", diff)
	}

	list, _ := s.ListSessions(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
	list, _ = s.ListSessions(ctx, "u2")
	if len(list) != 0 {
		t.Fatalf("expected 0 sessions for other owner, got %d", len(list))
	}

	if _, err := s.DeleteSession(ctx, sess.ID, nil, now+1); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	deleted, err := s.LookupSession(ctx, sess.ID)
	if err != nil || !deleted.Deleted {
		t.Fatalf("expected tombstone, got %+v %v", deleted, err)
	}
	if _, err := s.DeleteSession(ctx, sess.ID, nil, now+2); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	list, _ = s.ListSessions(ctx, "")
	if len(list) != 0 {
		t.Fatalf("expected deleted session hidden, got %d", len(list))
	}
}

func TestSessionStore_UpdateRejectedLeavesRecord(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	sess, _ := s.CreateSession(ctx, "u1", "p1", 1)

	_, err := s.UpdateSession(ctx, sess.ID, func(cur *model.Session) error {
		cur.State = model.SessionConnected
		return apperr.InvalidState("nope")
	}, 2)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, _ := s.GetSession(ctx, sess.ID)
	if got.State != model.SessionPending || got.UpdatedAt != 1 {
		t.Fatalf("record must be unchanged, got %+v", got)
	}

	artifact := "code"
	updated, err := s.UpdateSession(ctx, sess.ID, func(cur *model.Session) error {
		cur.PairingArtifact = &artifact
		return nil
	}, 3)
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if updated.PairingArtifact == nil || *updated.PairingArtifact != "code" || updated.UpdatedAt != 3 {
		t.Fatalf("unexpected update %+v", updated)
	}
}

func TestSessionStore_ByPhoneAndState(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	a, _ := s.CreateSession(ctx, "u1", "p1", 1)
	_, _ = s.CreateSession(ctx, "u2", "p2", 2)
	_, _ = s.UpdateSession(ctx, a.ID, func(cur *model.Session) error {
		cur.State = model.SessionConnected
		return nil
	}, 3)

	byPhone, _ := s.ListSessionsByPhone(ctx, "p1")
	if len(byPhone) != 1 || byPhone[0].ID != a.ID {
		t.Fatalf("unexpected by-phone result %+v", byPhone)
	}
	connected, _ := s.ListSessionsByState(ctx, model.SessionConnected)
	if len(connected) != 1 || connected[0].ID != a.ID {
		t.Fatalf("unexpected by-state result %+v", connected)
	}
	live, _ := s.ListSessionsByState(ctx, model.SessionPending, model.SessionConnected)
	if len(live) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(live))
	}
}

func TestPromptStore_ActivateIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewPromptStore()
	a, _ := s.CreatePrompt(ctx, model.Prompt{OwnerID: "u1", Phone: "p1", Text: "a"}, 1)
	b, _ := s.CreatePrompt(ctx, model.Prompt{OwnerID: "u1", Phone: "p1", Text: "b"}, 2)
	other, _ := s.CreatePrompt(ctx, model.Prompt{OwnerID: "u1", Phone: "p2", Text: "c"}, 3)

	if a.Status != model.PromptInactive {
		t.Fatalf("expected new prompt inactive")
	}
	if _, err := s.ActivatePrompt(ctx, a.ID, 4); err != nil {
		t.Fatalf("ActivatePrompt: %v", err)
	}
	if _, err := s.ActivatePrompt(ctx, other.ID, 5); err != nil {
		t.Fatalf("ActivatePrompt: %v", err)
	}
	if _, err := s.ActivatePrompt(ctx, b.ID, 6); err != nil {
		t.Fatalf("ActivatePrompt: %v", err)
	}

	gotA, _ := s.GetPrompt(ctx, a.ID)
	gotB, _ := s.GetPrompt(ctx, b.ID)
	gotOther, _ := s.GetPrompt(ctx, other.ID)
	if gotA.Status != model.PromptInactive || gotB.Status != model.PromptActive {
		t.Fatalf("expected only b active, got a=%s b=%s", gotA.Status, gotB.Status)
	}
	if gotOther.Status != model.PromptActive {
		t.Fatalf("prompt for another phone must stay active")
	}

	if _, err := s.ActivatePrompt(ctx, "missing", 7); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPromptStore_DeleteGuard(t *testing.T) {
	ctx := context.Background()
	s := NewPromptStore()
	p, _ := s.CreatePrompt(ctx, model.Prompt{OwnerID: "u1", Phone: "p1", Text: "a"}, 1)

	err := s.DeletePrompt(ctx, p.ID, func(model.Prompt) error { return apperr.InvalidState("active") })
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if err := s.DeletePrompt(ctx, p.ID, nil); err != nil {
		t.Fatalf("DeletePrompt: %v", err)
	}
	if _, err := s.GetPrompt(ctx, p.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCustomerStore_Upserts(t *testing.T) {
	ctx := context.Background()
	s := NewCustomerStore()
	if _, err := s.GetCustomer(ctx, "u1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	c, err := s.SetPaymentMethod(ctx, "u1", "pm_123", 10)
	if err != nil {
		t.Fatalf("SetPaymentMethod: %v", err)
	}
	if !c.HasPaymentMethod() || c.CreatedAt != 10 {
		t.Fatalf("unexpected customer %+v", c)
	}

	c, err = s.CreditTokens(ctx, "u1", 50, 20)
	if err != nil {
		t.Fatalf("CreditTokens: %v", err)
	}
	c, _ = s.CreditTokens(ctx, "u1", 25, 30)
	want := model.Customer{ID: "u1", PaymentMethodID: "pm_123", TokensRemaining: 75, LastChargeAt: 30, CreatedAt: 10, UpdatedAt: 30}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("customer mismatch (-want +got):\n%s", diff)
	}
}
