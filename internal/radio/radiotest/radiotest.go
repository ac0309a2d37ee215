// Package radiotest provides an in-memory radio.Radio for driver tests.
//
// A Radio records every request it receives. When built with a Peripheral it
// also answers those requests the way a real stack would, so a whole
// connect-and-discover sequence can run without hardware. Tests can inject
// arbitrary events at any point with Emit.
package radiotest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/radio"
)

// Op names recorded in Call.Op
const (
	OpPowerOn                 = "power-on"
	OpScan                    = "scan"
	OpStopScan                = "stop-scan"
	OpConnect                 = "connect"
	OpDiscoverServices        = "discover-services"
	OpDiscoverCharacteristics = "discover-characteristics"
	OpSubscribe               = "subscribe"
	OpRead                    = "read"
	OpWrite                   = "write"
	OpCancelConnection        = "cancel-connection"
	OpClose                   = "close"
)

// Call is one recorded request.
type Call struct {
	Op             string
	Address        string
	Service        string
	Characteristic string
	Filter         []string
	Window         time.Duration
	Data           []byte
	WithResponse   bool
}

// Radio is a recording, optionally self-answering radio.Radio.
type Radio struct {
	worker *radio.Worker

	mu        sync.Mutex
	calls     []Call
	waiters   []chan Call
	responder func(Call) []radio.Event
	closed    bool
}

var _ radio.Radio = (*Radio)(nil)

// New returns a Radio that only records requests; every event must be injected with Emit.
func New() *Radio {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Radio{worker: radio.NewWorker("radiotest", radio.DefaultEventBuffer, logger)}
}

// NewWithPeripheral returns a Radio that answers requests on behalf of p.
func NewWithPeripheral(p *Peripheral) *Radio {
	r := New()
	r.responder = p.respond
	return r
}

// SetResponder replaces the automatic responder. nil disables it.
func (r *Radio) SetResponder(fn func(Call) []radio.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responder = fn
}

// Emit queues events for delivery, in order, after anything already queued.
func (r *Radio) Emit(events ...radio.Event) {
	for _, ev := range events {
		ev := ev
		r.worker.Submit("emit", func(context.Context) {
			r.worker.Emit(ev)
		})
	}
}

// Calls returns a copy of every recorded request.
func (r *Radio) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallsOf returns the recorded requests with the given op.
func (r *Radio) CallsOf(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the op names of every recorded request, in order.
func (r *Radio) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// WaitFor blocks until a request with op has been recorded (including ones
// recorded before the call) or timeout elapses.
func (r *Radio) WaitFor(op string, timeout time.Duration) (Call, bool) {
	r.mu.Lock()
	for _, c := range r.calls {
		if c.Op == op {
			r.mu.Unlock()
			return c, true
		}
	}
	ch := make(chan Call, 64)
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	deadline := time.After(timeout)
	for {
		select {
		case c := <-ch:
			if c.Op == op {
				return c, true
			}
		case <-deadline:
			return Call{}, false
		}
	}
}

// Closed reports whether Close was called.
func (r *Radio) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Radio) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	responder := r.responder
	for _, w := range r.waiters {
		select {
		case w <- c:
		default:
		}
	}
	r.mu.Unlock()

	if responder != nil {
		r.Emit(responder(c)...)
	}
}

func (r *Radio) Events() <-chan radio.Event { return r.worker.Events() }

func (r *Radio) PowerOn() { r.record(Call{Op: OpPowerOn}) }

func (r *Radio) Scan(services []string, window time.Duration) {
	r.record(Call{Op: OpScan, Filter: slices.Clone(services), Window: window})
}

func (r *Radio) StopScan() { r.record(Call{Op: OpStopScan}) }

func (r *Radio) Connect(address string) { r.record(Call{Op: OpConnect, Address: address}) }

func (r *Radio) DiscoverServices(filter []string) {
	r.record(Call{Op: OpDiscoverServices, Filter: slices.Clone(filter)})
}

func (r *Radio) DiscoverCharacteristics(service string, filter []string) {
	r.record(Call{Op: OpDiscoverCharacteristics, Service: service, Filter: slices.Clone(filter)})
}

func (r *Radio) Subscribe(service, characteristic string) {
	r.record(Call{Op: OpSubscribe, Service: service, Characteristic: characteristic})
}

func (r *Radio) Read(service, characteristic string) {
	r.record(Call{Op: OpRead, Service: service, Characteristic: characteristic})
}

func (r *Radio) Write(service, characteristic string, data []byte, withResponse bool) {
	r.record(Call{
		Op:             OpWrite,
		Service:        service,
		Characteristic: characteristic,
		Data:           slices.Clone(data),
		WithResponse:   withResponse,
	})
}

func (r *Radio) CancelConnection() { r.record(Call{Op: OpCancelConnection}) }

// Close records the call and stops event delivery.
func (r *Radio) Close() error {
	r.record(Call{Op: OpClose})
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.worker.Close()
	return nil
}
