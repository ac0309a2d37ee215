package die

import (
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/radio"
	"github.com/srg/dicelink/internal/radio/radiotest"
)

const testAddress = "c0:ff:ee:00:00:01"

func diceCharacteristics() []radio.Characteristic {
	return []radio.Characteristic{
		{Service: DiceServiceUUID, UUID: RollCharUUID, Properties: radio.PropWrite},
		{Service: DiceServiceUUID, UUID: RolledCharUUID, Properties: radio.PropRead | radio.PropNotify},
	}
}

func powerCharacteristics() []radio.Characteristic {
	return []radio.Characteristic{
		{Service: PowerServiceUUID, UUID: SleepCharUUID, Properties: radio.PropWrite},
	}
}

func infoCharacteristics() []radio.Characteristic {
	return []radio.Characteristic{
		{Service: DeviceInfoServiceUUID, UUID: SerialNumberCharUUID, Properties: radio.PropRead},
		{Service: DeviceInfoServiceUUID, UUID: FirmwareRevCharUUID, Properties: radio.PropRead},
		{Service: DeviceInfoServiceUUID, UUID: HardwareRevCharUUID, Properties: radio.PropRead},
	}
}

// dicePeripheral simulates the dice firmware. Rolling notifies face.
func dicePeripheral(face byte) *radiotest.Peripheral {
	return &radiotest.Peripheral{
		Address:    testAddress,
		Name:       "XIAO",
		RSSI:       -42,
		Advertised: []string{"B95A2DD0-DD96-4AEB-8284-CE317BD7D3A1"},
		Services: []radiotest.Service{
			{UUID: "180A", Characteristics: infoCharacteristics()},
			{UUID: "B95A2DD0-DD96-4AEB-8284-CE317BD7D3FF", Characteristics: diceCharacteristics()},
			{UUID: "B95A2DD0-DD96-4AEB-8284-CE317BD7D3E0", Characteristics: powerCharacteristics()},
		},
		Values: map[string][]byte{
			SerialNumberCharUUID: []byte("SN-0042\x00"),
			FirmwareRevCharUUID:  []byte("1.2.0"),
			HardwareRevCharUUID:  []byte("ESP32-S3"),
		},
		OnWrite: func(characteristic string, data []byte) []radio.Event {
			if characteristic == RollCharUUID && len(data) == 1 && data[0] == OpRoll {
				return []radio.Event{radio.ValueUpdated{Service: DiceServiceUUID, Characteristic: RolledCharUUID, Data: []byte{face}}}
			}
			return nil
		},
	}
}

func testHandle() device.Handle {
	return NewHandle("die-1", "")
}

func findEffects[T effect](fx effects) []T {
	var out []T
	for _, e := range fx {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// feed applies inputs in order and returns the final machine plus all effects.
func feed(m machine, inputs ...input) (machine, effects) {
	var all effects
	for _, in := range inputs {
		var fx effects
		m, fx = step(m, in)
		all = append(all, fx...)
	}
	return m, all
}

// discoveringMachine is a machine that just connected to testAddress.
func discoveringMachine() machine {
	m := newMachine(testHandle().WithAddress(testAddress), DefaultScanWindow)
	m, _ = feed(m,
		startRequest{},
		radio.AdapterStateChanged{State: radio.StatePoweredOn},
		radio.Connected{Address: testAddress},
	)
	return m
}

func servicesEvent(services ...string) radio.ServicesDiscovered {
	if len(services) == 0 {
		services = []string{DeviceInfoServiceUUID, DiceServiceUUID, PowerServiceUUID}
	}
	return radio.ServicesDiscovered{Services: services}
}

func readyMachine() machine {
	m, _ := feed(discoveringMachine(),
		servicesEvent(),
		radio.CharacteristicsDiscovered{Service: DiceServiceUUID, Characteristics: diceCharacteristics()},
		radio.CharacteristicsDiscovered{Service: PowerServiceUUID, Characteristics: powerCharacteristics()},
	)
	return m
}
