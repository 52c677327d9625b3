package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrap: %w", Auth("POST /x", "Authentication failed", ErrSessionExpired))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("want errors.Is(err, ErrAuth)")
	}
	if errors.Is(err, ErrNetwork) {
		t.Fatalf("auth error must not match ErrNetwork")
	}
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("cause must stay reachable")
	}
	if KindOf(err) != KindAuth {
		t.Fatalf("KindOf=%v", KindOf(err))
	}
}

func TestError_MessageAndString(t *testing.T) {
	t.Parallel()

	s := Server("POST /addon-sync-progress", "boom")
	if s.Error() != "POST /addon-sync-progress: boom" {
		t.Fatalf("Error()=%q", s.Error())
	}
	if Message(s) != "boom" {
		t.Fatalf("Message=%q", Message(s))
	}

	p := PartialSync("d1", errors.New("db locked"))
	if p.Error() != "deck d1: db locked" {
		t.Fatalf("partial Error()=%q", p.Error())
	}
	if !errors.Is(p, ErrPartialSync) {
		t.Fatalf("want partial sync kind")
	}

	n := Network("GET /x", context.DeadlineExceeded)
	if !errors.Is(n, context.DeadlineExceeded) {
		t.Fatalf("network cause lost")
	}
	if Message(nil) != "" {
		t.Fatalf("Message(nil) must be empty")
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	t.Parallel()
	if KindOf(errors.New("x")) != KindUnknown {
		t.Fatalf("want unknown")
	}
	if Hint(errors.New("x")) != "" {
		t.Fatalf("want empty hint")
	}
	if Hint(Validation("op", "bad", nil)) == "" {
		t.Fatalf("want validation hint")
	}
}
