package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test injection as goble.DeviceFactory
var DeviceFactory = newPlatformDevice

// dial connects to a peripheral (can be overridden in tests)
var dial = func(ctx context.Context, dev ble.Device, address string) (gattClient, error) {
	return dev.Dial(ctx, ble.NewAddr(address))
}

// gattClient is the subset of ble.Client the radio uses.
type gattClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	CancelConnection() error
}
