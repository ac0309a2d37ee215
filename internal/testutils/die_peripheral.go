package testutils

import (
	"github.com/srg/dicelink/internal/die"
	"github.com/srg/dicelink/internal/radio"
	"github.com/srg/dicelink/internal/radio/radiotest"
)

// DiePeripheral simulates the dice firmware at address. Rolling notifies face;
// the sleep command drops the link.
func DiePeripheral(address string, face byte) *radiotest.Peripheral {
	return &radiotest.Peripheral{
		Address:    address,
		Name:       "XIAO",
		RSSI:       -48,
		Advertised: []string{"B95A2DD0-DD96-4AEB-8284-CE317BD7D3A1"},
		Services: []radiotest.Service{
			{UUID: "180A", Characteristics: []radio.Characteristic{
				{UUID: die.SerialNumberCharUUID, Properties: radio.PropRead},
				{UUID: die.FirmwareRevCharUUID, Properties: radio.PropRead},
				{UUID: die.HardwareRevCharUUID, Properties: radio.PropRead},
			}},
			{UUID: "B95A2DD0-DD96-4AEB-8284-CE317BD7D3FF", Characteristics: []radio.Characteristic{
				{UUID: die.RollCharUUID, Properties: radio.PropWrite},
				{UUID: die.RolledCharUUID, Properties: radio.PropRead | radio.PropNotify},
			}},
			{UUID: "B95A2DD0-DD96-4AEB-8284-CE317BD7D3E0", Characteristics: []radio.Characteristic{
				{UUID: die.SleepCharUUID, Properties: radio.PropWrite},
			}},
		},
		Values: map[string][]byte{
			die.SerialNumberCharUUID: []byte("SN-0042\x00"),
			die.FirmwareRevCharUUID:  []byte("1.2.0"),
			die.HardwareRevCharUUID:  []byte("ESP32-S3"),
		},
		OnWrite: func(characteristic string, data []byte) []radio.Event {
			if len(data) != 1 {
				return nil
			}
			switch {
			case characteristic == die.RollCharUUID && data[0] == die.OpRoll:
				return []radio.Event{radio.ValueUpdated{
					Service: die.DiceServiceUUID, Characteristic: die.RolledCharUUID, Data: []byte{face},
				}}
			case characteristic == die.SleepCharUUID && data[0] == die.OpSleep:
				return []radio.Event{radio.Disconnected{Address: address}}
			}
			return nil
		},
	}
}
