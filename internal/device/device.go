package device

import (
	"context"
	"fmt"
)

// ValueUnset marks a State.Value that has not been reported by the die yet.
// Faces start at 1, so it never names a face.
const ValueUnset = 0

// Kind selects the concrete Accessory variant built for a Handle.
type Kind string

const (
	KindDie     Kind = "die"
	KindPreview Kind = "preview"
)

// Proximity is the discovery range a Handle's descriptor requires.
type Proximity int

const (
	ProximityDefault Proximity = iota
	ProximityImmediate
)

func (p Proximity) String() string {
	switch p {
	case ProximityImmediate:
		return "immediate"
	default:
		return "default"
	}
}

// DiscoveryDescriptor describes how a device family is discovered and displayed.
type DiscoveryDescriptor struct {
	ServiceUUID string    // advertised service identifier
	Range       Proximity // required proximity
	DisplayName string
	ImageName   string
}

// Handle identifies a user-selected accessory. It is immutable once created.
type Handle struct {
	ID         string // opaque identifier supplied by the selection collaborator
	Address    string // optional hardware address (empty when never resolved)
	Kind       Kind
	Descriptor DiscoveryDescriptor
}

// WithAddress returns a copy of the handle bound to a hardware address.
func (h Handle) WithAddress(address string) Handle {
	h.Address = address
	return h
}

func (h Handle) String() string {
	if h.Address == "" {
		return h.ID
	}
	return fmt.Sprintf("%s (%s)", h.ID, h.Address)
}

// State is the observable state of an accessory.
type State struct {
	Value     int  `json:"value"`
	Busy      bool `json:"busy"`
	Connected bool `json:"connected"`
}

// HasValue reports whether the die has reported a face value.
func (s State) HasValue() bool {
	return s.Value != ValueUnset
}

// Accessory is the capability set every smart-die variant provides.
//
// State and Updates may be called from any goroutine. Roll, PowerOff and
// Disconnect never block on the radio and are no-ops when the accessory is not
// ready.
type Accessory interface {
	State() State
	Updates() <-chan State
	Title() string
	Image() string

	Roll()
	PowerOff()
	Disconnect()
}

// Connector asynchronously connects and initializes an accessory for a handle.
// It returns only once the accessory is ready, or with a typed *Error.
type Connector func(ctx context.Context, h Handle) (Accessory, error)
