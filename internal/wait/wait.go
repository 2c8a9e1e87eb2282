// Package wait provides the bounded polling primitive shared by login,
// discovery and page settling. Every wait has an upper bound; nothing in the
// crawler blocks indefinitely on page state.
package wait

import (
	"context"
	"time"
)

// Condition reports whether the awaited state has been reached. Returning an
// error does not stop polling; pages mid-transition routinely fail queries.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it reports
// true, maxWait elapses, or ctx ends.
//
// It returns (true, nil) on success and (false, nil) on timeout. If every
// evaluation failed, the last condition error is returned with the timeout so
// callers can log why. Context cancellation returns ctx.Err().
func Until(ctx context.Context, maxWait, interval time.Duration, cond Condition) (bool, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	succeededOnce := false
	check := func() bool {
		ok, err := cond(ctx)
		if err != nil {
			lastErr = err
			return false
		}
		succeededOnce = true
		return ok
	}

	if check() {
		return true, nil
	}
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			if !succeededOnce {
				return false, lastErr
			}
			return false, nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if check() {
				return true, nil
			}
		}
	}
}

// Sleep pauses for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
