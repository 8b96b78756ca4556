package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	retryBaseDelay = 25 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// withRetry re-executes fn on transient conflicts, up to attempts times, with
// doubling jittered delays. Hard errors abort immediately; exhaustion is
// surfaced as ErrTransient wrapping the last failure.
func withRetry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered(delay)):
			}
			if delay *= 2; delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %d attempts exhausted: %v", ErrTransient, attempts, lastErr)
}

func jittered(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// isTransient classifies errors worth re-executing the read-modify-write for:
// our own conflict sentinel plus the gRPC codes Firestore emits for aborted
// transactions and flaky transport.
func isTransient(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	switch status.Code(err) {
	case codes.Aborted, codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
