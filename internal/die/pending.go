package die

import "sync/atomic"

type pendingState int32

const (
	pendingNone pendingState = iota
	pendingWaiting
	pendingResolved
)

func (s pendingState) String() string {
	switch s {
	case pendingWaiting:
		return "waiting"
	case pendingResolved:
		return "resolved"
	default:
		return "none"
	}
}

// pendingInit is the single caller waiting for connect-and-initialize.
// The first resolve wins; the state machine and the timeout guard may race on it.
type pendingInit struct {
	state  atomic.Int32
	result chan error
}

func newPendingInit() *pendingInit {
	return &pendingInit{result: make(chan error, 1)}
}

// arm creates the waiter. It returns nil when a waiter was already created.
func (p *pendingInit) arm() <-chan error {
	if !p.state.CompareAndSwap(int32(pendingNone), int32(pendingWaiting)) {
		return nil
	}
	return p.result
}

// resolve delivers err (nil for success) to the waiter.
// won is false when another resolution got there first; armed is false when
// no waiter was ever created.
func (p *pendingInit) resolve(err error) (won, armed bool) {
	won, armed = p.claim()
	if won {
		p.deliver(err)
	}
	return won, armed
}

// claim wins the resolution without waking the waiter. The winner must call
// deliver exactly once.
func (p *pendingInit) claim() (won, armed bool) {
	if pendingState(p.state.Load()) == pendingNone {
		return false, false
	}
	if !p.state.CompareAndSwap(int32(pendingWaiting), int32(pendingResolved)) {
		return false, true
	}
	return true, true
}

func (p *pendingInit) deliver(err error) {
	p.result <- err
}

func (p *pendingInit) current() pendingState {
	return pendingState(p.state.Load())
}
