package die

import (
	"context"
	"time"

	"github.com/srg/dicelink/internal/groutine"
)

// timeoutGuard races a single-shot timer (and the caller's context) against
// initialization. Whichever side resolves the pending init first wins.
type timeoutGuard struct {
	cancel context.CancelFunc
	done   <-chan struct{}
}

// startTimeoutGuard calls onTimeout when budget elapses, or onCancel when
// parent is done, unless stop is called first.
func startTimeoutGuard(parent context.Context, budget time.Duration, onTimeout func(), onCancel func(err error)) *timeoutGuard {
	ctx, cancel := context.WithCancel(context.Background())

	done := groutine.GoDone(ctx, "die-timeout-guard", func(ctx context.Context) {
		timer := time.NewTimer(budget)
		defer timer.Stop()

		select {
		case <-timer.C:
			onTimeout()
		case <-parent.Done():
			onCancel(parent.Err())
		case <-ctx.Done():
		}
	})

	return &timeoutGuard{cancel: cancel, done: done}
}

// stop cancels the guard and waits for its goroutine. Safe to call twice.
func (g *timeoutGuard) stop() {
	g.cancel()
	<-g.done
}
