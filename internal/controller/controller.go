// Package controller owns the single live accessory of a session. It reacts to
// selection events, replaces the accessory on reselection and remembers the
// address a handle resolved to.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
)

// EventKind is the kind of a session event.
type EventKind int

const (
	// Added reports a newly selected accessory.
	Added EventKind = iota
	// Changed reports that a selected accessory's details changed.
	Changed
	// Activated reports an accessory session becoming active.
	Activated
	// Removed reports that the accessory was removed from the session.
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Activated:
		return "activated"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// SessionEvent is a selection event from the accessory picker.
type SessionEvent struct {
	Kind   EventKind
	Handle device.Handle
}

// Registry maps accessory kinds to their connectors.
type Registry map[device.Kind]device.Connector

// Bonds remembers handle addresses across sessions.
type Bonds interface {
	Lookup(id string) (string, bool)
	Remember(id, address string) error
}

// ErrSuperseded is returned by Select when a newer selection or a Disconnect
// replaced it before it finished connecting.
var ErrSuperseded = errors.New("selection superseded")

// Controller owns at most one live accessory.
type Controller struct {
	registry Registry
	bonds    Bonds
	logger   *logrus.Logger

	mu         sync.Mutex
	generation uint64
	current    device.Accessory
	handle     device.Handle
	cancel     context.CancelFunc
}

// New creates a controller. bonds may be nil.
func New(registry Registry, bonds Bonds, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{registry: registry, bonds: bonds, logger: logger}
}

// Run consumes events until ctx is done or events is closed.
func (c *Controller) Run(ctx context.Context, events <-chan SessionEvent) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, ev)
		case <-ctx.Done():
			c.Disconnect()
			return ctx.Err()
		}
	}
}

// HandleEvent applies a single session event. Connect failures are logged;
// the caller may select again.
func (c *Controller) HandleEvent(ctx context.Context, ev SessionEvent) {
	c.logger.WithFields(logrus.Fields{
		"event":  ev.Kind.String(),
		"handle": ev.Handle.String(),
	}).Debug("Session event")

	switch ev.Kind {
	case Added, Changed, Activated:
		if _, err := c.Select(ctx, ev.Handle); err != nil && !errors.Is(err, ErrSuperseded) {
			c.logger.WithFields(logrus.Fields{
				"handle": ev.Handle.String(),
				"error":  err,
			}).Error("Failed to connect accessory")
		}
	case Removed:
		c.Disconnect()
	default:
		c.logger.WithField("event", ev.Kind.String()).Warn("Unknown session event")
	}
}

// Select disconnects the current accessory and connects h. It blocks until h
// is ready or has failed.
func (c *Controller) Select(ctx context.Context, h device.Handle) (device.Accessory, error) {
	connect, ok := c.registry[h.Kind]
	if !ok {
		return nil, device.NewError(device.PeripheralNotSupported, nil, "no connector for accessory kind %q", h.Kind)
	}

	if h.Address == "" && c.bonds != nil {
		if addr, ok := c.bonds.Lookup(h.ID); ok {
			c.logger.WithFields(logrus.Fields{
				"handle":  h.ID,
				"address": addr,
			}).Debug("Using bonded address")
			h = h.WithAddress(addr)
		}
	}

	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.releaseLocked()
	c.generation++
	gen := c.generation
	c.handle = h
	c.cancel = cancel
	c.mu.Unlock()

	acc, err := connect(connectCtx, h)

	c.mu.Lock()
	superseded := c.generation != gen
	if !superseded {
		c.cancel = nil
	}
	if err == nil && !superseded {
		c.current = acc
	}
	c.mu.Unlock()

	if err != nil {
		if superseded {
			return nil, fmt.Errorf("%w: %w", ErrSuperseded, err)
		}
		return nil, err
	}
	if superseded {
		acc.Disconnect()
		return nil, ErrSuperseded
	}

	c.remember(h, acc)
	return acc, nil
}

// remember stores the address a die resolved, if it exposes one.
func (c *Controller) remember(h device.Handle, acc device.Accessory) {
	if c.bonds == nil {
		return
	}
	addressed, ok := acc.(interface{ Address() string })
	if !ok || addressed.Address() == "" {
		return
	}
	if err := c.bonds.Remember(h.ID, addressed.Address()); err != nil {
		c.logger.WithFields(logrus.Fields{
			"handle": h.ID,
			"error":  err,
		}).Warn("Failed to remember bond")
	}
}

// Disconnect drops the current accessory and cancels a connect in flight.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.releaseLocked()
}

func (c *Controller) releaseLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.current != nil {
		c.logger.WithField("handle", c.handle.String()).Info("Disconnecting accessory")
		c.current.Disconnect()
		c.current = nil
	}
}

// Current returns the live accessory, or nil.
func (c *Controller) Current() device.Accessory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// CurrentHandle returns the handle of the last selection.
func (c *Controller) CurrentHandle() device.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}
