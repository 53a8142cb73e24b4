package flows

import (
	"context"
	"sync"
	"time"
)

// Notifier runs best-effort backend notifications in the background. Each
// call gets its own timeout, detached from the caller's cancellation.
type Notifier struct {
	Timeout time.Duration
	// OnError receives the failure of a notification. May be nil.
	OnError func(ctx context.Context, err error)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Go starts fn in a new goroutine and returns immediately. After Close it
// does nothing and reports false.
func (n *Notifier) Go(ctx context.Context, fn func(context.Context) error) bool {
	ctx = context.WithoutCancel(ctx)
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()

		callCtx := ctx
		if n.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, n.Timeout)
			defer cancel()
		}
		if err := fn(callCtx); err != nil && n.OnError != nil {
			n.OnError(ctx, err)
		}
	}()
	return true
}

// Wait blocks until every started notification has returned.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close stops accepting notifications and waits for the started ones.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
