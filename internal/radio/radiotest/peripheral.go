package radiotest

import (
	"errors"
	"slices"
	"strings"

	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/radio"
)

// Service is a simulated GATT service.
type Service struct {
	UUID            string
	Characteristics []radio.Characteristic
}

// Peripheral describes how a simulated device answers radio requests.
type Peripheral struct {
	Address    string
	Name       string
	RSSI       int
	Advertised []string

	// AdapterStates are reported, in order, on PowerOn. Empty means powered on.
	AdapterStates []radio.State

	// Hidden peripherals never show up in a scan.
	Hidden bool

	// ScanEnds reports ScanStopped right after the advertisement, as if the
	// scan window elapsed.
	ScanEnds bool

	// ConnectErr makes Connect fail.
	ConnectErr error

	// ServicesErr makes service discovery fail.
	ServicesErr error

	Services []Service

	// Values answers Read by characteristic UUID.
	Values map[string][]byte

	// OnWrite returns extra events emitted after a successful write.
	OnWrite func(characteristic string, data []byte) []radio.Event
}

// ErrUnknownPeripheral is reported when Connect targets another address.
var ErrUnknownPeripheral = errors.New("radiotest: peripheral not found")

func (p *Peripheral) respond(c Call) []radio.Event {
	switch c.Op {
	case OpPowerOn:
		states := p.AdapterStates
		if len(states) == 0 {
			states = []radio.State{radio.StatePoweredOn}
		}
		out := make([]radio.Event, 0, len(states))
		for _, st := range states {
			out = append(out, radio.AdapterStateChanged{State: st})
		}
		return out

	case OpScan:
		if p.Hidden || !p.advertises(c.Filter) {
			return []radio.Event{radio.ScanStopped{}}
		}
		out := []radio.Event{radio.PeripheralDiscovered{
			Address:  p.Address,
			Name:     p.Name,
			RSSI:     p.RSSI,
			Services: slices.Clone(p.Advertised),
		}}
		if p.ScanEnds {
			out = append(out, radio.ScanStopped{})
		}
		return out

	case OpStopScan:
		return []radio.Event{radio.ScanStopped{}}

	case OpConnect:
		if p.ConnectErr != nil {
			return []radio.Event{radio.ConnectFailed{Address: c.Address, Err: p.ConnectErr}}
		}
		if !strings.EqualFold(c.Address, p.Address) {
			return []radio.Event{radio.ConnectFailed{Address: c.Address, Err: ErrUnknownPeripheral}}
		}
		return []radio.Event{radio.Connected{Address: p.Address}}

	case OpDiscoverServices:
		if p.ServicesErr != nil {
			return []radio.Event{radio.ServicesDiscovered{Err: p.ServicesErr}}
		}
		var found []string
		for _, s := range p.Services {
			if len(c.Filter) == 0 || slices.Contains(c.Filter, device.NormalizeUUID(s.UUID)) {
				found = append(found, s.UUID)
			}
		}
		return []radio.Event{radio.ServicesDiscovered{Services: found}}

	case OpDiscoverCharacteristics:
		for _, s := range p.Services {
			if !device.SameUUID(s.UUID, c.Service) {
				continue
			}
			var found []radio.Characteristic
			for _, ch := range s.Characteristics {
				if len(c.Filter) == 0 || slices.Contains(c.Filter, device.NormalizeUUID(ch.UUID)) {
					ch.Service = c.Service
					found = append(found, ch)
				}
			}
			return []radio.Event{radio.CharacteristicsDiscovered{Service: c.Service, Characteristics: found}}
		}
		return []radio.Event{radio.CharacteristicsDiscovered{Service: c.Service}}

	case OpSubscribe:
		return []radio.Event{radio.Subscribed{Service: c.Service, Characteristic: c.Characteristic}}

	case OpRead:
		v, ok := p.Values[c.Characteristic]
		if !ok {
			return []radio.Event{radio.ValueUpdated{
				Service: c.Service, Characteristic: c.Characteristic, Read: true,
				Err: errors.New("radiotest: characteristic not readable"),
			}}
		}
		return []radio.Event{radio.ValueUpdated{
			Service: c.Service, Characteristic: c.Characteristic, Read: true, Data: slices.Clone(v),
		}}

	case OpWrite:
		out := []radio.Event{radio.WriteCompleted{Service: c.Service, Characteristic: c.Characteristic}}
		if p.OnWrite != nil {
			out = append(out, p.OnWrite(c.Characteristic, c.Data)...)
		}
		return out

	case OpCancelConnection:
		return []radio.Event{radio.Disconnected{Address: p.Address}}
	}
	return nil
}

func (p *Peripheral) advertises(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range p.Advertised {
		if slices.Contains(filter, device.NormalizeUUID(s)) {
			return true
		}
	}
	return false
}
