package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "direct sentinel", err: ErrForbidden, want: "forbidden"},
		{name: "wrapped with reason", err: Newf(ErrInvalidTransition, "payment request %s is already %s", "p1", "approved"), want: "invalid_transition"},
		{name: "double wrapped", err: fmt.Errorf("transfer: %w", Newf(ErrInsufficientFunds, "balance 10 < 20")), want: "insufficient_funds"},
		{name: "unclassified is infrastructure", err: errors.New("disk full"), want: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewfKeepsReason(t *testing.T) {
	err := Newf(ErrInvalidTransition, "payment request %s is already %s", "p1", "approved")
	want := "invalid_transition: payment request p1 is already approved"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUnavailable(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Unavailable(base)
	if !errors.Is(wrapped, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", wrapped)
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("expected the cause to stay in the chain")
	}

	classified := Newf(ErrNotFound, "member %s", "m1")
	if got := Unavailable(classified); got != classified {
		t.Errorf("classified error should pass through unchanged, got %v", got)
	}
	if Unavailable(nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
}
