package die

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/dicelink/internal/device"
)

func TestProfileIdentifiersAreNormalized(t *testing.T) {
	for _, uuid := range []string{
		AdvertisedServiceUUID, PowerServiceUUID, SleepCharUUID, DiceServiceUUID,
		RollCharUUID, RolledCharUUID, DeviceInfoServiceUUID,
		SerialNumberCharUUID, FirmwareRevCharUUID, HardwareRevCharUUID,
	} {
		assert.Equal(t, device.NormalizeUUID(uuid), uuid, "profile identifiers MUST be stored normalized")
	}
	assert.True(t, device.SameUUID("B95A2DD0-DD96-4AEB-8284-CE317BD7D3FF", DiceServiceUUID))
	assert.True(t, device.SameUUID("0000FFA0-0000-1000-8000-00805F9B34FB", RollCharUUID))
}

func TestNewHandle(t *testing.T) {
	h := NewHandle("die-1", "aa:bb")

	assert.Equal(t, device.KindDie, h.Kind)
	assert.Equal(t, "aa:bb", h.Address)
	assert.Equal(t, AdvertisedServiceUUID, h.Descriptor.ServiceUUID)
	assert.Equal(t, device.ProximityImmediate, h.Descriptor.Range)
	assert.Equal(t, DisplayName, h.Descriptor.DisplayName)
}

func TestScanFilter(t *testing.T) {
	h := NewHandle("die-1", "")
	assert.Equal(t, []string{AdvertisedServiceUUID, DiceServiceUUID, PowerServiceUUID}, ScanFilter(h))

	h.Descriptor.ServiceUUID = "B95A2DD0-DD96-4AEB-8284-CE317BD7D3FF"
	assert.Equal(t, []string{DiceServiceUUID, PowerServiceUUID}, ScanFilter(h), "duplicates MUST be dropped")

	h.Descriptor.ServiceUUID = ""
	assert.Equal(t, []string{DiceServiceUUID, PowerServiceUUID}, ScanFilter(h))
}
