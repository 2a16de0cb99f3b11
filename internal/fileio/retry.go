// Package fileio wraps calendar file access in a bounded retry loop. Calendar
// files are shared with other applications that may hold them briefly while
// writing, so every operation is attempted a few times before giving up.
package fileio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultAttempts = 6
	DefaultPause    = 500 * time.Millisecond
)

type Retrier struct {
	Attempts int
	Pause    time.Duration

	// sleep waits between attempts, returning early with ctx.Err() on cancellation
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier() *Retrier {
	return &Retrier{
		Attempts: DefaultAttempts,
		Pause:    DefaultPause,
	}
}

// Do runs fn until it succeeds or the attempts are used up. At most
// Attempts-1 pauses happen. When every attempt fails the first error is
// returned, wrapped with op.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var firstErr error
	for i := range attempts {
		if i > 0 {
			slog.Debug("fileio retry", "op", op, "attempt", fmt.Sprintf("%d/%d", i+1, attempts), "after", r.Pause, "error", firstErr)
			if err := r.wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return fmt.Errorf("%s: %w", op, firstErr)
}

func (r *Retrier) wait(ctx context.Context) error {
	if r.sleep != nil {
		return r.sleep(ctx, r.Pause)
	}

	timer := time.NewTimer(r.Pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
