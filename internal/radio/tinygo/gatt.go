package tinygo

import (
	"encoding/hex"
	"fmt"

	"github.com/srg/dicelink/internal/device"
	"tinygo.org/x/bluetooth"
)

// adapter is the subset of *bluetooth.Adapter the radio uses.
type adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
	SetConnectHandler(c func(device bluetooth.Device, connected bool))
}

type gattDevice interface {
	DiscoverServices(uuids []bluetooth.UUID) ([]gattService, error)
	Disconnect() error
}

type gattService interface {
	UUID() bluetooth.UUID
	DiscoverCharacteristics(uuids []bluetooth.UUID) ([]gattCharacteristic, error)
}

// gattCharacteristic is satisfied by *bluetooth.DeviceCharacteristic.
type gattCharacteristic interface {
	UUID() bluetooth.UUID
	Read(data []byte) (int, error)
	Write(p []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

type tinygoDevice struct {
	dev bluetooth.Device
}

func (d tinygoDevice) DiscoverServices(uuids []bluetooth.UUID) ([]gattService, error) {
	svcs, err := d.dev.DiscoverServices(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]gattService, len(svcs))
	for i := range svcs {
		out[i] = tinygoService{svc: svcs[i]}
	}
	return out, nil
}

func (d tinygoDevice) Disconnect() error {
	return d.dev.Disconnect()
}

type tinygoService struct {
	svc bluetooth.DeviceService
}

func (s tinygoService) UUID() bluetooth.UUID {
	return s.svc.UUID()
}

func (s tinygoService) DiscoverCharacteristics(uuids []bluetooth.UUID) ([]gattCharacteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]gattCharacteristic, len(chars))
	for i := range chars {
		out[i] = &chars[i]
	}
	return out, nil
}

// toUUID converts a normalized identifier into a tinygo UUID.
func toUUID(id string) (bluetooth.UUID, error) {
	n := device.NormalizeUUID(id)
	raw, err := hex.DecodeString(n)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: %w", id, err)
	}
	switch len(raw) {
	case 2:
		return bluetooth.New16BitUUID(uint16(raw[0])<<8 | uint16(raw[1])), nil
	case 16:
		return bluetooth.ParseUUID(n[0:8] + "-" + n[8:12] + "-" + n[12:16] + "-" + n[16:20] + "-" + n[20:32])
	default:
		return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: unsupported length", id)
	}
}

func toUUIDs(ids []string) ([]bluetooth.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]bluetooth.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := toUUID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func fromUUID(u bluetooth.UUID) string {
	return device.NormalizeUUID(u.String())
}
