package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/sethvargo/go-retry"
)

// isTransient reports whether re-driving the failed step can succeed.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, ErrSimulatedCrash):
		return false
	case errors.Is(err, client.ErrUnavailable),
		errors.Is(err, client.ErrServer),
		errors.Is(err, ErrInjectedFault),
		errors.Is(err, common.ErrLockNotHeld),
		errors.Is(err, common.ErrNotStaged),
		errors.Is(err, common.ErrChecksumMismatch):
		return true
	}
	return false
}

// retry runs fn up to MaxAttempts times with exponential fallback between
// attempts. Every retry is reported as a Recovery event.
func (d *deps) retry(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	var retries uint64
	if d.cfg.MaxAttempts > 1 {
		retries = uint64(d.cfg.MaxAttempts - 1)
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(d.cfg.RetryBaseDelay))

	attempt := 0
	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			d.log.Warn(ctx, "sync step failed, retrying", "step", step, "attempt", attempt-1, "error", last)
			d.notify.event(Recovery{Step: step})
		}

		err := fn(ctx)
		if err == nil || !isTransient(err) {
			return err
		}
		if errors.Is(err, common.ErrLockNotHeld) {
			d.lock.forget()
		}
		last = err
		return retry.RetryableError(err)
	})
	if err != nil && isTransient(err) && ctx.Err() == nil {
		return fmt.Errorf("%s: %w: %w", step, ErrRecoveryFailed, err)
	}
	return err
}
