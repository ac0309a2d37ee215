package main

import (
	"context"
	"time"

	"github.com/srg/dicelink/internal/controller"
	"github.com/srg/dicelink/internal/device"
)

// drainUpdates discards states already queued on acc.
func drainUpdates(acc device.Accessory) {
	for {
		select {
		case _, ok := <-acc.Updates():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// rollTracker follows the states a roll publishes: busy first, then the face.
type rollTracker struct {
	sawBusy bool
}

// observe reports whether st completes the roll.
func (t *rollTracker) observe(st device.State) bool {
	if st.Busy {
		t.sawBusy = true
		return false
	}
	return t.sawBusy && st.HasValue()
}

// rollAndWait rolls acc and waits for the face it lands on.
func rollAndWait(ctx context.Context, acc device.Accessory, wait time.Duration) (int, error) {
	drainUpdates(acc)
	acc.Roll()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var tracker rollTracker
	for {
		select {
		case st, ok := <-acc.Updates():
			if !ok || !st.Connected {
				return 0, ErrConnectionLost
			}
			if tracker.observe(st) {
				return st.Value, nil
			}
		case <-timer.C:
			return 0, ErrNoValue
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// awaitDisconnected waits until acc reports it is disconnected, or wait elapses.
func awaitDisconnected(ctx context.Context, acc device.Accessory, wait time.Duration) bool {
	if !acc.State().Connected {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case st, ok := <-acc.Updates():
			if !ok || !st.Connected {
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// releaseWait bounds how long a command waits for the radio to close on exit.
const releaseWait = 3 * time.Second

// release disconnects the selected accessory and waits for its connection to
// end, so queued radio writes are flushed before the process exits.
func release(ctrl *controller.Controller, acc device.Accessory) {
	ctrl.Disconnect()
	if done, ok := acc.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-done.Done():
		case <-time.After(releaseWait):
		}
	}
	if closer, ok := acc.(interface{ Close() }); ok {
		closer.Close()
	}
}
