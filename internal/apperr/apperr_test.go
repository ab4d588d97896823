package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := Conflict("phone already has a live session")
	err := fmt.Errorf("create session: %w", base)
	if got := KindOf(err); got != KindConflict {
		t.Fatalf("expected conflict, got %q", got)
	}
	if !Is(err, KindConflict) {
		t.Fatalf("expected Is to match")
	}
	if Message(err) != "phone already has a live session" {
		t.Fatalf("unexpected message %q", Message(err))
	}
}

func TestKindOf_Plain(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal, got %q", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
	if Is(nil, KindInternal) {
		t.Fatalf("nil should not match any kind")
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindUpstreamUnavailable, "payment lookup failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "payment lookup failed: dial tcp: refused" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindConflict:            http.StatusConflict,
		KindInvalidState:        http.StatusConflict,
		KindPreconditionFailed:  http.StatusPreconditionFailed,
		KindPaymentRequired:     http.StatusPaymentRequired,
		KindUpstreamUnavailable: http.StatusServiceUnavailable,
		KindInvalidArgument:     http.StatusBadRequest,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
