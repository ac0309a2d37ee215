package die

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/groutine"
	"github.com/srg/dicelink/internal/radio"
	"github.com/srg/dicelink/internal/ringchan"
)

// Die is a connected smart die. It implements device.Accessory.
//
// All state machine mutation happens on one goroutine ("die-loop") that
// consumes radio events and command requests in order. Observers read an
// atomic snapshot through State or follow Updates.
type Die struct {
	handle device.Handle
	radio  radio.Radio
	opts   Options
	logger *logrus.Logger

	pending  *pendingInit
	requests chan input
	halted   chan struct{}
	done     chan struct{}

	// interrupt is the input recorded by the timeout guard when it resolves
	// init. The loop steps it ahead of anything still queued.
	interrupt atomic.Pointer[input]

	phase   atomic.Uint32
	state   atomic.Pointer[device.State]
	info    atomic.Pointer[Info]
	address atomic.Pointer[string]
	updates *ringchan.RingChannel[device.State]
}

var _ device.Accessory = (*Die)(nil)

// haltGrace bounds how long a failed Init waits for the driver to stop stepping.
const haltGrace = 250 * time.Millisecond

// Connect powers on the adapter, acquires the peripheral described by h,
// connects and discovers the die profile. It returns once the die is ready,
// or with a *device.Error when initialization fails, times out, is
// disconnected, or ctx is cancelled.
//
// The Die owns r from here on and closes it when the connection ends.
func Connect(ctx context.Context, h device.Handle, r radio.Radio, opts Options) (*Die, error) {
	d := New(h, r, opts)
	if err := d.Init(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// New creates an idle die and starts its driver goroutine. Call Init to
// connect, or Disconnect to release it unused.
func New(h device.Handle, r radio.Radio, opts Options) *Die {
	opts = opts.withDefaults()
	d := &Die{
		handle:   h,
		radio:    r,
		opts:     opts,
		logger:   opts.Logger,
		pending:  newPendingInit(),
		requests: make(chan input, 16),
		halted:   make(chan struct{}),
		done:     make(chan struct{}),
		updates:  ringchan.New[device.State](opts.UpdatesBuffer),
	}
	d.state.Store(&device.State{})
	d.info.Store(&Info{})
	address := h.Address
	d.address.Store(&address)

	groutine.Go(context.Background(), "die-loop", d.loop)
	return d
}

// Init runs connect-and-initialize. It blocks until the die is ready or a
// typed failure is known; the timeout budget always bounds the wait.
// Init may only be called once.
func (d *Die) Init(ctx context.Context) error {
	wait := d.pending.arm()
	if wait == nil {
		return errors.New("die: Init called twice")
	}

	guard := startTimeoutGuard(ctx, d.opts.InitTimeout, d.fireTimeout, d.fireCancel)
	defer guard.stop()

	d.logger.WithFields(logrus.Fields{
		"handle":  d.handle.String(),
		"timeout": d.opts.InitTimeout.String(),
	}).Info("Connecting to die...")

	d.post(startRequest{})

	var err error
	select {
	case err = <-wait:
	case <-d.done:
		d.settle(device.NewError(device.PeripheralNotFound, nil, "disconnected before initialization started"), "init")
		err = <-wait
	}

	if err != nil {
		d.awaitHalt()
		d.logger.WithFields(logrus.Fields{
			"handle": d.handle.String(),
			"error":  err,
		}).Error("Failed to connect to die")
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"handle":  d.handle.String(),
		"address": d.Address(),
	}).Info("Die connected successfully")
	return nil
}

// awaitHalt gives the driver a moment to step the failure so Phase and State
// reflect it. Releasing the radio is not waited for: a stack call that
// ignores cancellation must not stretch Connect past its budget.
func (d *Die) awaitHalt() {
	select {
	case <-d.halted:
	case <-time.After(haltGrace):
		d.logger.WithField("handle", d.handle.String()).Debug("Die driver still busy after failed init")
	}
}

// Handle returns the handle the die was connected from.
func (d *Die) Handle() device.Handle { return d.handle }

// State returns the latest observable state.
func (d *Die) State() device.State { return *d.state.Load() }

// Updates streams state changes. The channel is closed when the connection ends.
func (d *Die) Updates() <-chan device.State { return d.updates.C() }

// Title returns the display name of the die.
func (d *Die) Title() string {
	if d.handle.Descriptor.DisplayName != "" {
		return d.handle.Descriptor.DisplayName
	}
	return DisplayName
}

// Image returns the product image name of the die.
func (d *Die) Image() string {
	if d.handle.Descriptor.ImageName != "" {
		return d.handle.Descriptor.ImageName
	}
	return ImageName
}

// Info returns the Device Information strings read so far.
func (d *Die) Info() Info { return *d.info.Load() }

// Address returns the hardware address the die was reached at.
func (d *Die) Address() string { return *d.address.Load() }

// Phase returns the current state machine phase.
func (d *Die) Phase() Phase { return Phase(d.phase.Load()) }

// Done is closed once the connection has ended and the radio is released.
func (d *Die) Done() <-chan struct{} { return d.done }

// Roll asks the die to roll. No-op unless ready.
func (d *Die) Roll() { d.post(rollRequest{}) }

// PowerOff asks the die to go to sleep. No-op unless ready.
func (d *Die) PowerOff() { d.post(powerOffRequest{}) }

// Disconnect releases the connection. Before readiness it fails the pending
// Connect with PeripheralNotFound. Safe to call repeatedly.
func (d *Die) Disconnect() { d.post(disconnectRequest{}) }

func (d *Die) post(in input) {
	select {
	case d.requests <- in:
	case <-d.done:
		d.logger.WithField("request", in.String()).Debug("Die connection ended, dropping request")
	}
}

func (d *Die) fireTimeout() {
	err := device.NewError(device.Timeout, nil, "initialization exceeded %s", d.opts.InitTimeout)
	d.interruptInit(timeoutFired{}, err, "timeout")
}

func (d *Die) fireCancel(cause error) {
	d.interruptInit(initCancelled{err: cause}, device.Passthrough(cause), "cancellation")
}

// interruptInit resolves init from outside the driver. The input is recorded
// before settling so the loop can never observe a resolved init without it.
func (d *Die) interruptInit(in input, err error, source string) {
	d.interrupt.CompareAndSwap(nil, &in)
	if d.settle(err, source) {
		d.post(in)
	}
}

// interrupted returns the guard's input once it has resolved init.
func (d *Die) interrupted() (input, bool) {
	if d.pending.current() != pendingResolved {
		return nil, false
	}
	in := d.interrupt.Load()
	if in == nil {
		return nil, false
	}
	return *in, true
}

// settle resolves the pending init and reports whether this call won.
func (d *Die) settle(err error, source string) bool {
	if !d.claim(err, source) {
		return false
	}
	d.pending.deliver(err)
	return true
}

// claim wins the pending init for err without waking the caller yet.
func (d *Die) claim(err error, source string) bool {
	won, armed := d.pending.claim()
	if !armed {
		invariant(d.logger, "init resolved without a waiter", logrus.Fields{"source": source, "error": err})
		return false
	}
	if !won {
		d.logger.WithFields(logrus.Fields{
			"source": source,
			"error":  err,
		}).Debug("Initialization already resolved, dropping result")
	}
	return won
}

func (d *Die) loop(ctx context.Context) {
	m := newMachine(d.handle, d.opts.ScanWindow)
	events := d.radio.Events()

	defer d.shutdown()

	for {
		var in input
		select {
		case ev := <-events:
			in = ev
		case req := <-d.requests:
			in = req
		}

		// Once the guard has resolved init, nothing queued behind it may
		// move an initializing die forward.
		if m.phase < PhaseReady {
			if late, ok := d.interrupted(); ok && late.String() != in.String() {
				d.logger.WithFields(logrus.Fields{
					"input":    in.String(),
					"resolved": late.String(),
				}).Debug("Initialization already resolved, dropping input")
				in = late
			}
		}

		d.logger.WithFields(logrus.Fields{
			"input": in.String(),
			"phase": m.phase.String(),
		}).Trace("Die input")

		prev := m
		var fx effects
		m, fx = step(m, in)

		// Success is claimed before any effect of the ready transition runs
		// and delivered after them, so Connect returns a die that reads ready.
		// Losing means the guard got there first; its input decides instead.
		ready := false
		if m.phase == PhaseReady && prev.phase < PhaseReady {
			if ready = d.claim(nil, "ready"); !ready {
				late, ok := d.interrupted()
				if !ok {
					late = timeoutFired{}
				}
				m, fx = step(prev, late)
			}
		}

		stop := d.apply(fx)
		if ready {
			d.pending.deliver(nil)
		}
		if stop {
			return
		}
	}
}

// apply runs the effects of one transition; it reports whether the loop must stop.
func (d *Die) apply(fx effects) (stop bool) {
	for _, e := range fx {
		switch e := e.(type) {
		case powerOn:
			d.radio.PowerOn()
		case startScan:
			d.radio.Scan(e.services, e.window)
		case stopScan:
			d.radio.StopScan()
		case dial:
			d.radio.Connect(e.address)
		case discoverServices:
			d.radio.DiscoverServices(e.filter)
		case discoverCharacteristics:
			d.radio.DiscoverCharacteristics(e.service, e.filter)
		case subscribe:
			d.radio.Subscribe(e.service, e.characteristic)
		case readValue:
			d.radio.Read(e.service, e.characteristic)
		case writeValue:
			d.radio.Write(e.service, e.characteristic, e.data, true)
		case cancelConnection:
			d.radio.CancelConnection()
		case resolveInit:
			if e.err != nil {
				d.settle(e.err, "state machine")
			}
		case publishState:
			st := e.state
			d.state.Store(&st)
			d.updates.Send(st)
		case publishInfo:
			info := e.info
			d.info.Store(&info)
		case enterPhase:
			d.phase.Store(uint32(e.phase))
			if d.opts.Progress != nil {
				d.opts.Progress(e.phase)
			}
		case bindAddress:
			address := e.address
			d.address.Store(&address)
		case logEntry:
			d.logger.WithFields(e.fields).Log(e.level, e.msg)
		case violation:
			invariant(d.logger, e.msg, e.fields)
		case stopLoop:
			stop = true
		}
	}
	return stop
}

// shutdown releases the radio and fails a still-pending init so no caller is
// left waiting.
func (d *Die) shutdown() {
	if d.pending.current() == pendingWaiting {
		d.settle(device.NewError(device.PeripheralNotFound, nil, "connection ended before initialization finished"), "shutdown")
	}
	d.updates.Close()
	close(d.halted)
	if err := d.radio.Close(); err != nil {
		d.logger.WithField("error", err).Warn("Failed to close radio")
	}
	close(d.done)
}
