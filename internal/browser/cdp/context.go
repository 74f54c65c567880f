// internal/browser/cdp/context.go
package cdp

import (
	"context"
	"time"
)

// combineContext derives from tabCtx, which carries the chromedp target, a
// context that is also canceled when opCtx is done. opCtx supplies the
// caller's deadline and cancellation; chromedp actions need tabCtx's values.
func combineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	if dl, ok := opCtx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, dl)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps a parent's values but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// detach returns a context with ctx's values that outlives ctx, used to
// shut the browser down after the caller's context has expired.
func detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
