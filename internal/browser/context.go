// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives from primary (keeping its values, which carry the
// chromedp target) and is canceled when either primary or secondary is.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps the parent's values but not its deadline or
// cancellation.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// Detach returns a context that outlives ctx. Shutdown paths use it so the
// browser is released even after the run context was canceled.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
