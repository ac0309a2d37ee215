package radio

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/groutine"
)

// DefaultEventBuffer is the default capacity of a Worker event channel
const DefaultEventBuffer = 128

// Worker executes radio operations one at a time, in submission order,
// and delivers their events on a single channel.
//
// Submit never blocks: pending operations are kept in an unbounded queue so a
// consumer that is itself issuing requests cannot deadlock against a worker
// that is waiting to emit.
type Worker struct {
	logger *logrus.Logger
	events chan Event

	mu     sync.Mutex
	queue  []op
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   <-chan struct{}
}

type op struct {
	name string
	fn   func(ctx context.Context)
}

// NewWorker starts a worker goroutine labelled name.
func NewWorker(name string, buffer int, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.New()
	}
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		logger: logger,
		events: make(chan Event, buffer),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	w.done = groutine.GoDone(ctx, name, w.run)
	return w
}

// Events returns the ordered event stream.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Context is cancelled once the worker is closed.
func (w *Worker) Context() context.Context {
	return w.ctx
}

// Submit queues fn. Operations submitted after Close are dropped.
func (w *Worker) Submit(name string, fn func(ctx context.Context)) {
	if w.ctx.Err() != nil {
		w.logger.WithField("op", name).Debug("Radio worker closed, dropping operation")
		return
	}

	w.mu.Lock()
	w.queue = append(w.queue, op{name: name, fn: fn})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Emit delivers ev, blocking until it is consumed or the worker is closed.
// Returns false when the event was dropped.
func (w *Worker) Emit(ev Event) bool {
	select {
	case w.events <- ev:
		w.logger.WithField("event", ev.String()).Trace("Radio event emitted")
		return true
	case <-w.ctx.Done():
		w.logger.WithField("event", ev.String()).Debug("Radio worker closed, dropping event")
		return false
	}
}

// Close stops the worker and waits for the in-flight operation to return.
func (w *Worker) Close() {
	w.cancel()
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	for {
		next, ok := w.pop()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		w.logger.WithField("op", next.name).Trace("Radio operation started")
		next.fn(ctx)
	}
}

func (w *Worker) pop() (op, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return op{}, false
	}
	next := w.queue[0]
	w.queue[0] = op{}
	w.queue = w.queue[1:]
	return next, true
}
