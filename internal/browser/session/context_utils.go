// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext returns a context that carries the values of primary (the
// chromedp tab context) and is canceled when either primary or op is done.
// Deadlines on op apply through the cancellation link.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(op, func() {
		cancel(context.Cause(op))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Detach returns a context that keeps ctx's values (the CDP target) but
// ignores its cancellation. Used for cleanup that must outlive a request.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
