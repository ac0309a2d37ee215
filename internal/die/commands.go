package die

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/radio"
)

// onRoll optimistically marks the die busy and writes the roll opcode.
// The face value arrives later as a notification.
func (m *machine) onRoll(fx *effects) {
	if m.phase != PhaseReady {
		m.ignore(fx, "roll: die not ready", nil)
		return
	}

	m.state.Busy = true
	m.state.Value = device.ValueUnset
	m.publish(fx)
	fx.debug("Rolling", nil)
	fx.add(writeValue{service: m.chars.roll.Service, characteristic: m.chars.roll.UUID, data: []byte{OpRoll}})
}

// onPowerOff writes the sleep opcode. The die disconnects on its own.
func (m *machine) onPowerOff(fx *effects) {
	if m.phase != PhaseReady {
		m.ignore(fx, "power off: die not ready", nil)
		return
	}

	fx.info("Powering off", logrus.Fields{"address": m.address})
	fx.add(writeValue{service: m.chars.sleep.Service, characteristic: m.chars.sleep.UUID, data: []byte{OpSleep}})
}

func (m *machine) onValue(fx *effects, ev radio.ValueUpdated) {
	if ev.Read {
		m.onInfoValue(fx, ev)
		return
	}

	uuid := device.NormalizeUUID(ev.Characteristic)
	if ev.Err != nil {
		fx.warn("Notification error", logrus.Fields{"characteristic": uuid, "error": ev.Err})
		return
	}
	if uuid != RolledCharUUID {
		m.ignore(fx, "notification", logrus.Fields{"characteristic": uuid, "data": ev.Data})
		return
	}
	if m.phase != PhaseReady {
		m.ignore(fx, "roll result", logrus.Fields{"data": ev.Data})
		return
	}
	if len(ev.Data) == 0 {
		m.ignore(fx, "empty roll result", nil)
		return
	}
	// Faces start at 1; a zero byte would read back as no value at all.
	if ev.Data[0] == device.ValueUnset {
		fx.warn("Ignoring roll result without a face", logrus.Fields{"data": ev.Data})
		return
	}

	m.state.Value = int(ev.Data[0])
	m.state.Busy = false
	fx.info("Die rolled", logrus.Fields{"value": m.state.Value})
	m.publish(fx)
}

func (m *machine) onWriteCompleted(fx *effects, ev radio.WriteCompleted) {
	uuid := device.NormalizeUUID(ev.Characteristic)
	if ev.Err == nil {
		fx.debug("Write acknowledged", logrus.Fields{"characteristic": uuid})
		return
	}

	err := radio.NormalizeError(ev.Err)
	fx.warn("Write failed", logrus.Fields{"characteristic": uuid, "error": err})
	if m.phase != PhaseReady {
		return
	}

	changed := false
	if uuid == RollCharUUID && m.state.Busy {
		m.state.Busy = false
		changed = true
	}
	if device.IsKind(err, device.PeripheralNotConnected) && m.state.Connected {
		m.state.Connected = false
		changed = true
	}
	if changed {
		m.publish(fx)
	}
}

func (m *machine) onSubscribed(fx *effects, ev radio.Subscribed) {
	uuid := device.NormalizeUUID(ev.Characteristic)
	if ev.Err != nil {
		fx.warn("Subscribe failed", logrus.Fields{"characteristic": uuid, "error": ev.Err})
		return
	}
	fx.debug("Subscribed", logrus.Fields{"characteristic": uuid})
}
