package die

import (
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/radio"
)

// onServices marks each profile service found and requests its
// characteristics. Unknown services and repeated announcements are ignored.
func (m *machine) onServices(fx *effects, ev radio.ServicesDiscovered) {
	if m.phase != PhaseDiscovering {
		m.ignore(fx, "service discovery result", logrus.Fields{"services": ev.Services})
		return
	}
	if ev.Err != nil {
		m.fail(fx, device.Passthrough(ev.Err))
		return
	}
	if len(ev.Services) == 0 {
		m.fail(fx, device.NewError(device.NoServices, nil, "peripheral %s reported no services", m.address))
		return
	}

	for _, raw := range ev.Services {
		svc := device.NormalizeUUID(raw)

		if bit, ok := serviceBit[svc]; ok {
			if m.readiness.Has(bit) {
				fx.debug("Ignoring duplicate service", logrus.Fields{"service": svc})
				continue
			}
			m.readiness.Set(bit)
			fx.debug("Service resolved", logrus.Fields{"service": svc, "readiness": m.readiness.String()})
			fx.add(discoverCharacteristics{service: svc, filter: characteristicFilter[svc]})
			continue
		}

		if svc == DeviceInfoServiceUUID {
			if m.infoRequested {
				fx.debug("Ignoring duplicate service", logrus.Fields{"service": svc})
				continue
			}
			m.infoRequested = true
			fx.add(discoverCharacteristics{service: svc, filter: characteristicFilter[svc]})
			continue
		}

		fx.debug("Unknown service", logrus.Fields{"service": svc})
	}

	if missing := m.missing(PowerService | DiceService); len(missing) > 0 {
		m.fail(fx, device.NewError(device.NoServices, nil, "peripheral %s is missing %v", m.address, missing))
		return
	}
	m.checkReady(fx)
}

// onCharacteristics records the profile characteristics of one service and
// subscribes to every characteristic that pushes values.
func (m *machine) onCharacteristics(fx *effects, ev radio.CharacteristicsDiscovered) {
	svc := device.NormalizeUUID(ev.Service)

	if svc == DeviceInfoServiceUUID {
		m.onInfoCharacteristics(fx, ev)
		return
	}
	if m.phase != PhaseDiscovering {
		m.ignore(fx, "characteristic discovery result", logrus.Fields{"service": svc})
		return
	}
	if _, ok := serviceBit[svc]; !ok {
		fx.debug("Ignoring characteristics of unknown service", logrus.Fields{"service": svc})
		return
	}
	if ev.Err != nil {
		m.fail(fx, device.Passthrough(ev.Err))
		return
	}
	if len(ev.Characteristics) == 0 {
		m.fail(fx, device.NewError(device.NoCharacteristics, nil, "service %s reported no characteristics", svc))
		return
	}

	for _, c := range ev.Characteristics {
		c.Service = svc
		c.UUID = device.NormalizeUUID(c.UUID)

		if !slices.Contains(characteristicFilter[svc], c.UUID) {
			fx.debug("Unknown characteristic", logrus.Fields{"service": svc, "characteristic": c.UUID})
			continue
		}
		if m.chars.has(c.UUID) {
			fx.debug("Ignoring duplicate characteristic", logrus.Fields{"service": svc, "characteristic": c.UUID})
			continue
		}
		if c.Properties.CanNotify() {
			fx.add(subscribe{service: svc, characteristic: c.UUID})
		}

		switch c.UUID {
		case RollCharUUID:
			m.chars.roll = c
		case SleepCharUUID:
			m.chars.sleep = c
		case RolledCharUUID:
			m.chars.rolled = c
		}
		if bit, ok := characteristicBit[c.UUID]; ok {
			if m.readiness.Set(bit) {
				fx.debug("All readiness facts observed", nil)
			}
		}
		fx.debug("Characteristic resolved", logrus.Fields{"characteristic": c.UUID, "readiness": m.readiness.String()})
	}

	var required Readiness
	switch svc {
	case PowerServiceUUID:
		required = SleepChar
	case DiceServiceUUID:
		required = RollChar
	}
	if missing := m.missing(required); len(missing) > 0 {
		m.fail(fx, device.NewError(device.NoCharacteristics, nil, "service %s is missing %v", svc, missing))
		return
	}
	m.checkReady(fx)
}

// onInfoCharacteristics reads the Device Information strings. They are
// optional and never gate readiness, so results may arrive after Ready.
func (m *machine) onInfoCharacteristics(fx *effects, ev radio.CharacteristicsDiscovered) {
	if m.phase != PhaseDiscovering && m.phase != PhaseReady {
		m.ignore(fx, "device information characteristics", nil)
		return
	}
	if ev.Err != nil {
		fx.warn("Device information discovery failed", logrus.Fields{"error": ev.Err})
		return
	}
	for _, c := range ev.Characteristics {
		uuid := device.NormalizeUUID(c.UUID)
		if slices.Contains(characteristicFilter[DeviceInfoServiceUUID], uuid) {
			fx.add(readValue{service: DeviceInfoServiceUUID, characteristic: uuid})
		}
	}
}

func (m *machine) onInfoValue(fx *effects, ev radio.ValueUpdated) {
	uuid := device.NormalizeUUID(ev.Characteristic)
	if ev.Err != nil {
		fx.warn("Device information read failed", logrus.Fields{"characteristic": uuid, "error": ev.Err})
		return
	}

	value := trimNUL(ev.Data)
	switch uuid {
	case SerialNumberCharUUID:
		m.info.SerialNumber = value
	case FirmwareRevCharUUID:
		m.info.FirmwareRevision = value
	case HardwareRevCharUUID:
		m.info.HardwareRevision = value
	default:
		m.ignore(fx, "read result", logrus.Fields{"characteristic": uuid})
		return
	}
	fx.add(publishInfo{info: m.info})
}

// missing names the facts of want that are not set.
func (m *machine) missing(want Readiness) []string {
	if m.readiness.Has(want) {
		return nil
	}
	var names []string
	for _, n := range readinessNames {
		if want&n.bit != 0 && !m.readiness.Has(n.bit) {
			names = append(names, n.name)
		}
	}
	return names
}

// checkReady samples the readiness predicate after every discovery event.
func (m *machine) checkReady(fx *effects) {
	if m.phase != PhaseDiscovering || !m.readiness.IsReady() {
		return
	}
	fx.info("Die ready", logrus.Fields{"address": m.address})
	m.enter(fx, PhaseReady)
	m.publish(fx)
	fx.add(resolveInit{})
}

func trimNUL(b []byte) string {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}
