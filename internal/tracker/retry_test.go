package tracker

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWithRetrySucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestWithRetryHardErrorAbortsImmediately(t *testing.T) {
	hard := errors.New("schema mismatch")
	calls := 0
	err := withRetry(context.Background(), 5, func(context.Context) error {
		calls++
		return hard
	})
	if !errors.Is(err, hard) {
		t.Fatalf("expected the hard error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("hard errors must not be retried, fn called %d times", calls)
	}
}

func TestWithRetryExhaustionWrapsErrTransient(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, func(context.Context) error {
		calls++
		return status.Error(codes.Aborted, "transaction contention")
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient after exhaustion, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 10, func(context.Context) error {
		calls++
		cancel()
		return ErrConflict
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times after cancellation, want 1", calls)
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict sentinel", ErrConflict, true},
		{"aborted", status.Error(codes.Aborted, "x"), true},
		{"unavailable", status.Error(codes.Unavailable, "x"), true},
		{"not found", status.Error(codes.NotFound, "x"), false},
		{"plain error", errors.New("boom"), false},
		{"user not found", ErrUserNotFound, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
