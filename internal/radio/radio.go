// Package radio turns a BLE stack's push-style callbacks into one ordered
// stream of Events.
//
// A Radio accepts requests (power on, scan, connect, discover, read, write,
// subscribe) without blocking the caller. Each request is executed on a single
// worker goroutine and its outcome is reported as an Event on Events(), so all
// events for one peripheral arrive in the order the stack produced them.
//
// UUIDs crossing this boundary are normalized with device.NormalizeUUID.
package radio

import "time"

// Radio is the hardware seam consumed by the die driver.
type Radio interface {
	// Events returns the ordered event stream. It is never closed; stop
	// reading once Close has been called.
	Events() <-chan Event

	// PowerOn starts the adapter. The outcome is one or more AdapterStateChanged events.
	PowerOn()

	// Scan looks for peripherals advertising any of services for at most window.
	// Matches are reported as PeripheralDiscovered and the end of the scan as ScanStopped.
	Scan(services []string, window time.Duration)

	// StopScan ends a running scan early.
	StopScan()

	// Connect dials the peripheral at address. Reports Connected or ConnectFailed,
	// and later Disconnected if the link drops.
	Connect(address string)

	// DiscoverServices reports ServicesDiscovered for the services matching filter.
	DiscoverServices(filter []string)

	// DiscoverCharacteristics reports CharacteristicsDiscovered for service.
	DiscoverCharacteristics(service string, filter []string)

	// Subscribe enables notifications; values arrive as ValueUpdated.
	Subscribe(service, characteristic string)

	// Read reports the current value as ValueUpdated with Read set.
	Read(service, characteristic string)

	// Write reports WriteCompleted once the stack accepted (or acknowledged) the value.
	Write(service, characteristic string, data []byte, withResponse bool)

	// CancelConnection releases the current link, if any.
	CancelConnection()

	// Close stops the worker and releases the adapter.
	Close() error
}

// Property is a characteristic capability bit
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

// Has reports whether all bits in p2 are set
func (p Property) Has(p2 Property) bool {
	return p&p2 == p2
}

// CanNotify reports whether the characteristic pushes values (notify or indicate)
func (p Property) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

// Characteristic describes a discovered characteristic
type Characteristic struct {
	Service    string
	UUID       string
	Properties Property
}
