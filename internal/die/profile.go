package die

import (
	"slices"

	"github.com/srg/dicelink/internal/device"
)

// GATT identifiers of the Seeed XIAO ESP32 dice firmware, normalized.
const (
	AdvertisedServiceUUID = "b95a2dd0dd964aeb8284ce317bd7d3a1"

	PowerServiceUUID = "b95a2dd0dd964aeb8284ce317bd7d3e0"
	SleepCharUUID    = "b95a2dd0dd964aeb8284ce317bd7d3e1"

	DiceServiceUUID = "b95a2dd0dd964aeb8284ce317bd7d3ff"
	RollCharUUID    = "ffa0"
	RolledCharUUID  = "ffa1"

	DeviceInfoServiceUUID = "180a"
	SerialNumberCharUUID  = "2a25"
	FirmwareRevCharUUID   = "2a26"
	HardwareRevCharUUID   = "2a27"
)

// Command opcodes, written as a single byte with response.
const (
	OpRoll  byte = 0x00
	OpSleep byte = 0x01
)

const (
	DisplayName = "Seeed XIAO ESP32"
	ImageName   = "XIAO-ESP32-S3"
)

// ProfileServices is the service filter used for discovery, in request order.
var ProfileServices = []string{DeviceInfoServiceUUID, DiceServiceUUID, PowerServiceUUID}

// characteristicFilter scopes characteristic discovery per service.
var characteristicFilter = map[string][]string{
	DiceServiceUUID:       {RollCharUUID, RolledCharUUID},
	PowerServiceUUID:      {SleepCharUUID},
	DeviceInfoServiceUUID: {SerialNumberCharUUID, FirmwareRevCharUUID, HardwareRevCharUUID},
}

// serviceBit maps a required service to its readiness fact.
var serviceBit = map[string]Readiness{
	PowerServiceUUID: PowerService,
	DiceServiceUUID:  DiceService,
}

// characteristicBit maps a required characteristic to its readiness fact.
var characteristicBit = map[string]Readiness{
	SleepCharUUID: SleepChar,
	RollCharUUID:  RollChar,
}

// Descriptor returns the discovery descriptor a picker presents for this device family.
func Descriptor() device.DiscoveryDescriptor {
	return device.DiscoveryDescriptor{
		ServiceUUID: AdvertisedServiceUUID,
		Range:       device.ProximityImmediate,
		DisplayName: DisplayName,
		ImageName:   ImageName,
	}
}

// NewHandle builds a die handle. address may be empty.
func NewHandle(id, address string) device.Handle {
	return device.Handle{
		ID:         id,
		Address:    address,
		Kind:       device.KindDie,
		Descriptor: Descriptor(),
	}
}

// ScanFilter lists the services a scan for h accepts: the advertised service
// of its descriptor plus every profile service.
func ScanFilter(h device.Handle) []string {
	filter := make([]string, 0, len(ProfileServices)+1)
	if h.Descriptor.ServiceUUID != "" {
		filter = append(filter, device.NormalizeUUID(h.Descriptor.ServiceUUID))
	}
	for _, s := range []string{DiceServiceUUID, PowerServiceUUID} {
		if !slices.Contains(filter, s) {
			filter = append(filter, s)
		}
	}
	return filter
}
