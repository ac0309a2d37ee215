package die

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/radio"
)

// Phase is a connection state machine state
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAdapterWait
	PhaseAcquiring
	PhaseConnecting
	PhaseDiscovering
	PhaseReady
	PhaseDisconnected
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:         "idle",
	PhaseAdapterWait:  "adapter-wait",
	PhaseAcquiring:    "acquiring",
	PhaseConnecting:   "connecting",
	PhaseDiscovering:  "discovering",
	PhaseReady:        "ready",
	PhaseDisconnected: "disconnected",
	PhaseFailed:       "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseDisconnected || p == PhaseFailed
}

// input is anything the state machine consumes: radio events and driver requests.
type input interface {
	String() string
}

type (
	startRequest      struct{}
	rollRequest       struct{}
	powerOffRequest   struct{}
	disconnectRequest struct{}
	timeoutFired      struct{}
	initCancelled     struct{ err error }
)

func (startRequest) String() string      { return "start" }
func (rollRequest) String() string       { return "roll" }
func (powerOffRequest) String() string   { return "power-off" }
func (disconnectRequest) String() string { return "disconnect" }
func (timeoutFired) String() string      { return "timeout" }
func (c initCancelled) String() string   { return "cancelled: " + c.err.Error() }

// resolved holds the characteristics found during discovery.
// A zero Characteristic means not found yet.
type resolved struct {
	roll   radio.Characteristic
	sleep  radio.Characteristic
	rolled radio.Characteristic
}

func (r resolved) has(uuid string) bool {
	switch uuid {
	case RollCharUUID:
		return r.roll.UUID != ""
	case SleepCharUUID:
		return r.sleep.UUID != ""
	case RolledCharUUID:
		return r.rolled.UUID != ""
	}
	return false
}

// Info carries the optional Device Information characteristics.
type Info struct {
	SerialNumber     string `json:"serial_number,omitempty"`
	FirmwareRevision string `json:"firmware_revision,omitempty"`
	HardwareRevision string `json:"hardware_revision,omitempty"`
}

// machine is the connection state machine. step is a pure function of
// (machine, input); every side effect is returned for the driver to run.
type machine struct {
	phase      Phase
	handle     device.Handle
	scanWindow time.Duration

	scanning      bool
	address       string
	readiness     Readiness
	chars         resolved
	infoRequested bool
	info          Info
	state         device.State
	failure       error
}

func newMachine(h device.Handle, scanWindow time.Duration) machine {
	return machine{
		phase:      PhaseIdle,
		handle:     h,
		scanWindow: scanWindow,
		address:    h.Address,
	}
}

// step applies one input and returns the next machine and its effects.
func step(m machine, in input) (machine, effects) {
	var fx effects

	switch ev := in.(type) {
	case startRequest:
		m.onStart(&fx)
	case timeoutFired:
		m.onTimeout(&fx)
	case initCancelled:
		m.fail(&fx, device.Passthrough(ev.err))
	case disconnectRequest:
		m.onDisconnectRequest(&fx)
	case rollRequest:
		m.onRoll(&fx)
	case powerOffRequest:
		m.onPowerOff(&fx)

	case radio.AdapterStateChanged:
		m.onAdapterState(&fx, ev)
	case radio.PeripheralDiscovered:
		m.onPeripheralDiscovered(&fx, ev)
	case radio.ScanStopped:
		m.onScanStopped(&fx, ev)
	case radio.Connected:
		m.onConnected(&fx, ev)
	case radio.ConnectFailed:
		m.onConnectFailed(&fx, ev)
	case radio.Disconnected:
		m.onDisconnected(&fx, ev)
	case radio.ServicesDiscovered:
		m.onServices(&fx, ev)
	case radio.CharacteristicsDiscovered:
		m.onCharacteristics(&fx, ev)
	case radio.Subscribed:
		m.onSubscribed(&fx, ev)
	case radio.ValueUpdated:
		m.onValue(&fx, ev)
	case radio.WriteCompleted:
		m.onWriteCompleted(&fx, ev)

	default:
		fx.debug("Ignoring unexpected input", logrus.Fields{"input": in.String(), "phase": m.phase.String()})
	}

	return m, fx
}

func (m *machine) enter(fx *effects, p Phase) {
	m.phase = p
	fx.add(enterPhase{phase: p})
}

func (m *machine) publish(fx *effects) {
	fx.add(publishState{state: m.state})
}

func (m *machine) ignore(fx *effects, what string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["phase"] = m.phase.String()
	fx.debug("Ignoring "+what, fields)
}

func (m *machine) onStart(fx *effects) {
	if m.phase != PhaseIdle {
		fx.add(violation{msg: "start requested twice", fields: logrus.Fields{"phase": m.phase.String()}})
		return
	}
	m.enter(fx, PhaseAdapterWait)
	fx.add(powerOn{})
}

func (m *machine) onAdapterState(fx *effects, ev radio.AdapterStateChanged) {
	if m.phase != PhaseAdapterWait {
		m.ignore(fx, "adapter state change", logrus.Fields{"state": ev.State.String()})
		return
	}

	switch ev.State {
	case radio.StatePoweredOn:
		fx.info("Bluetooth adapter powered on", nil)
		m.acquire(fx)
	case radio.StateUnsupported, radio.StateUnauthorized:
		m.fail(fx, device.NewError(device.PeripheralNotSupported, nil, "bluetooth adapter is %s", ev.State))
	default:
		fx.warn("Waiting for bluetooth adapter", logrus.Fields{"state": ev.State.String()})
	}
}

// acquire resolves the peripheral: a known address is dialed directly,
// otherwise an active scan looks for the advertised service.
func (m *machine) acquire(fx *effects) {
	m.enter(fx, PhaseAcquiring)

	if m.address != "" {
		fx.info("Retrieving known peripheral", logrus.Fields{"address": m.address})
		m.connect(fx, m.address)
		return
	}

	filter := ScanFilter(m.handle)
	fx.info("Scanning for peripheral", logrus.Fields{"services": filter, "window": m.scanWindow.String()})
	m.scanning = true
	fx.add(startScan{services: filter, window: m.scanWindow})
}

func (m *machine) connect(fx *effects, address string) {
	m.address = address
	m.enter(fx, PhaseConnecting)
	fx.add(dial{address: address})
}

func (m *machine) onPeripheralDiscovered(fx *effects, ev radio.PeripheralDiscovered) {
	if m.phase != PhaseAcquiring || !m.scanning {
		m.ignore(fx, "scan result", logrus.Fields{"address": ev.Address})
		return
	}

	filter := ScanFilter(m.handle)
	if len(ev.Services) > 0 && !slices.ContainsFunc(device.NormalizeUUIDs(ev.Services), func(s string) bool {
		return slices.Contains(filter, s)
	}) {
		m.ignore(fx, "peripheral without profile service", logrus.Fields{"address": ev.Address, "services": ev.Services})
		return
	}

	fx.info("Found peripheral", logrus.Fields{"address": ev.Address, "name": ev.Name, "rssi": ev.RSSI})
	m.scanning = false
	fx.add(stopScan{})
	m.connect(fx, ev.Address)
}

func (m *machine) onScanStopped(fx *effects, ev radio.ScanStopped) {
	if m.phase != PhaseAcquiring || !m.scanning {
		m.ignore(fx, "scan stop", nil)
		return
	}
	m.scanning = false
	m.fail(fx, device.NewError(device.PeripheralNotFound, ev.Err, "no peripheral advertising %v found", ScanFilter(m.handle)))
}

func (m *machine) onConnected(fx *effects, ev radio.Connected) {
	if m.phase != PhaseConnecting {
		m.ignore(fx, "connect", logrus.Fields{"address": ev.Address})
		return
	}
	if ev.Address != "" {
		m.address = ev.Address
	}

	fx.info("Connected to peripheral", logrus.Fields{"address": m.address})
	m.enter(fx, PhaseDiscovering)
	m.state.Connected = true
	m.publish(fx)
	fx.add(bindAddress{address: m.address}, discoverServices{filter: ProfileServices})
}

func (m *machine) onConnectFailed(fx *effects, ev radio.ConnectFailed) {
	if m.phase != PhaseConnecting {
		m.ignore(fx, "connect failure", logrus.Fields{"address": ev.Address})
		return
	}
	m.fail(fx, device.NewError(device.PeripheralNotFound, ev.Err, "failed to connect to %s", m.address))
}

func (m *machine) onDisconnected(fx *effects, ev radio.Disconnected) {
	switch {
	case m.phase == PhaseReady:
		fields := logrus.Fields{"address": m.address}
		if ev.Err != nil {
			fields["error"] = ev.Err
		}
		fx.warn("Peripheral disconnected", fields)
		m.teardown(fx)
	case m.phase.Terminal() || m.phase < PhaseConnecting:
		m.ignore(fx, "disconnect", logrus.Fields{"address": ev.Address})
	default:
		m.fail(fx, device.NewError(device.PeripheralNotConnected, ev.Err, "peripheral disconnected during %s", m.phase))
	}
}

func (m *machine) onDisconnectRequest(fx *effects) {
	switch {
	case m.phase == PhaseIdle:
		// Nobody is waiting yet; Init notices the stopped loop.
		m.failure = device.NewError(device.PeripheralNotFound, nil, "disconnected before initialization started")
		m.enter(fx, PhaseFailed)
		fx.add(stopLoop{})
	case m.phase == PhaseReady:
		fx.info("Disconnecting", logrus.Fields{"address": m.address})
		m.teardown(fx)
	case m.phase.Terminal():
		m.ignore(fx, "disconnect request", nil)
	default:
		m.fail(fx, device.NewError(device.PeripheralNotFound, nil, "disconnected before initialization finished"))
	}
}

func (m *machine) onTimeout(fx *effects) {
	if m.phase.Terminal() {
		m.ignore(fx, "timeout", nil)
		return
	}
	m.fail(fx, device.NewError(device.Timeout, nil, "initialization timed out in %s (missing %v)", m.phase, m.readiness.Missing()))
}

// teardown moves Ready to Disconnected. The last value stays visible.
func (m *machine) teardown(fx *effects) {
	m.chars = resolved{}
	m.state.Connected = false
	m.state.Busy = false
	m.enter(fx, PhaseDisconnected)
	m.publish(fx)
	fx.add(cancelConnection{}, stopLoop{})
}

// fail ends initialization with err. Terminal phases are left untouched.
func (m *machine) fail(fx *effects, err error) {
	if m.phase.Terminal() {
		m.ignore(fx, "failure", logrus.Fields{"error": err})
		return
	}

	if m.scanning {
		m.scanning = false
		fx.add(stopScan{})
	}
	if m.phase >= PhaseConnecting {
		fx.add(cancelConnection{})
	}

	fx.warn("Initialization failed", logrus.Fields{"phase": m.phase.String(), "error": err})
	m.failure = err
	m.chars = resolved{}
	m.state.Connected = false
	m.state.Busy = false
	m.enter(fx, PhaseFailed)
	m.publish(fx)
	fx.add(resolveInit{err: err}, stopLoop{})
}
