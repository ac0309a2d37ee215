// Package preview provides an in-memory accessory that behaves like a die
// without any radio. It backs demos and UI work when no hardware is around.
package preview

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/groutine"
	"github.com/srg/dicelink/internal/ringchan"
)

const (
	DefaultRollDelay = 3 * time.Second

	title = "Preview Die"
	image = "preview-die"
)

// rollContext scopes one simulated roll. Tests replace it.
var rollContext = context.WithCancel

// Options configures a preview accessory.
type Options struct {
	Logger *logrus.Logger

	// RollDelay is how long a roll keeps the accessory busy.
	RollDelay time.Duration `default:"3s"`

	UpdatesBuffer int `default:"16"`

	// Face returns the next rolled value; defaults to a uniform 1..6.
	Face func() int
}

// Accessory is a device.Accessory that rolls locally.
type Accessory struct {
	handle  device.Handle
	opts    Options
	logger  *logrus.Logger
	updates *ringchan.RingChannel[device.State]

	mu      sync.Mutex
	state   device.State
	rolling context.CancelFunc
	closed  bool
}

var _ device.Accessory = (*Accessory)(nil)

// New returns a connected preview accessory.
func New(h device.Handle, opts Options) *Accessory {
	defaults.SetDefaults(&opts)
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Face == nil {
		opts.Face = func() int { return rand.IntN(6) + 1 }
	}

	a := &Accessory{
		handle:  h,
		opts:    opts,
		logger:  opts.Logger,
		updates: ringchan.New[device.State](opts.UpdatesBuffer),
		state:   device.State{Connected: true},
	}
	a.updates.Send(a.state)
	return a
}

// Connector returns a device.Connector building preview accessories.
func Connector(opts Options) device.Connector {
	return func(ctx context.Context, h device.Handle) (device.Accessory, error) {
		if err := ctx.Err(); err != nil {
			return nil, device.Passthrough(err)
		}
		return New(h, opts), nil
	}
}

func (a *Accessory) Handle() device.Handle { return a.handle }

func (a *Accessory) State() device.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Accessory) Updates() <-chan device.State { return a.updates.C() }

func (a *Accessory) Title() string {
	if a.handle.Descriptor.DisplayName != "" {
		return a.handle.Descriptor.DisplayName
	}
	return title
}

func (a *Accessory) Image() string {
	if a.handle.Descriptor.ImageName != "" {
		return a.handle.Descriptor.ImageName
	}
	return image
}

// Roll marks the accessory busy and reports a face after RollDelay.
func (a *Accessory) Roll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.state.Connected || a.state.Busy {
		return
	}

	a.state.Busy = true
	a.state.Value = device.ValueUnset
	a.publish()

	ctx, cancel := rollContext(context.Background())
	a.rolling = cancel
	groutine.Go(ctx, "preview-roll", func(ctx context.Context) {
		timer := time.NewTimer(a.opts.RollDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}

		face := a.opts.Face()
		a.mu.Lock()
		defer a.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		cancel()
		a.rolling = nil
		a.state.Value = face
		a.state.Busy = false
		a.logger.WithField("value", face).Debug("Preview die rolled")
		a.publish()
	})
}

// PowerOff toggles the simulated link.
func (a *Accessory) PowerOff() { a.toggle("power-off") }

// Disconnect toggles the simulated link.
func (a *Accessory) Disconnect() { a.toggle("disconnect") }

func (a *Accessory) toggle(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.stopRoll()
	a.state.Connected = !a.state.Connected
	a.logger.WithFields(logrus.Fields{
		"reason":    reason,
		"connected": a.state.Connected,
	}).Debug("Preview die link toggled")
	a.publish()
}

// Close cancels a pending roll and closes Updates.
func (a *Accessory) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.stopRoll()
	a.updates.Close()
}

func (a *Accessory) stopRoll() {
	if a.rolling != nil {
		a.rolling()
		a.rolling = nil
		a.state.Busy = false
	}
}

func (a *Accessory) publish() {
	a.updates.Send(a.state)
}
