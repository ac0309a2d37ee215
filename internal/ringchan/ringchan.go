// Package ringchan provides a bounded, overwrite-oldest channel used to fan
// accessory state changes out to observers without ever blocking the producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// It wraps an underlying buffered channel and ensures producers never block
// indefinitely: if the buffer is full, the oldest element is discarded.
//
//	rc := ringchan.New[device.State](1)
//	rc.Send(device.State{Busy: true})
//	rc.Send(device.State{Value: 4}) // replaces the unread busy state
//
//	for st := range rc.C() {
//	    render(st)
//	}
//
// Send after Close is dropped rather than panicking.
type RingChannel[T any] struct {
	mu      sync.Mutex // serializes producers so drop-oldest cannot race another Send
	ch      chan T
	closed  atomic.Bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
// Consumers can range over this until it's closed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item. If the buffer is full, it discards the oldest.
// Returns true when an older item was dropped.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed.Load() {
		return false
	}

	dropped := false
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
		rc.ch <- v
	}
	rc.metrics.addWritten(1)
	return dropped
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. Safe to call more than once.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for RingChannel.
type Metrics struct {
	Written     int64
	Overwritten int64
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
