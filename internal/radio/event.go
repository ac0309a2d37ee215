package radio

import "fmt"

// Event is a single radio stack notification.
type Event interface {
	fmt.Stringer
	event()
}

// AdapterStateChanged reports a new adapter power/authorization state.
type AdapterStateChanged struct {
	State State
}

// PeripheralDiscovered reports a scan match.
type PeripheralDiscovered struct {
	Address  string
	Name     string
	RSSI     int
	Services []string
}

// ScanStopped reports the end of a scan, either because its window elapsed,
// StopScan was called, or the stack failed.
type ScanStopped struct {
	Err error
}

// Connected reports an established link.
type Connected struct {
	Address string
}

// ConnectFailed reports a failed dial.
type ConnectFailed struct {
	Address string
	Err     error
}

// Disconnected reports the link going away, requested or not.
type Disconnected struct {
	Address string
	Err     error
}

// ServicesDiscovered carries the service discovery result.
type ServicesDiscovered struct {
	Services []string
	Err      error
}

// CharacteristicsDiscovered carries the characteristic discovery result for one service.
type CharacteristicsDiscovered struct {
	Service         string
	Characteristics []Characteristic
	Err             error
}

// Subscribed reports the outcome of enabling notifications.
type Subscribed struct {
	Service        string
	Characteristic string
	Err            error
}

// ValueUpdated carries a notification, or the result of a Read when Read is set.
type ValueUpdated struct {
	Service        string
	Characteristic string
	Data           []byte
	Read           bool
	Err            error
}

// WriteCompleted reports the outcome of a Write.
type WriteCompleted struct {
	Service        string
	Characteristic string
	Err            error
}

func (AdapterStateChanged) event()       {}
func (PeripheralDiscovered) event()      {}
func (ScanStopped) event()               {}
func (Connected) event()                 {}
func (ConnectFailed) event()             {}
func (Disconnected) event()              {}
func (ServicesDiscovered) event()        {}
func (CharacteristicsDiscovered) event() {}
func (Subscribed) event()                {}
func (ValueUpdated) event()              {}
func (WriteCompleted) event()            {}

func (e AdapterStateChanged) String() string { return "adapter-state(" + e.State.String() + ")" }
func (e PeripheralDiscovered) String() string {
	return fmt.Sprintf("peripheral-discovered(%s %q rssi=%d)", e.Address, e.Name, e.RSSI)
}
func (e ScanStopped) String() string   { return withErr("scan-stopped", e.Err) }
func (e Connected) String() string     { return "connected(" + e.Address + ")" }
func (e ConnectFailed) String() string { return withErr("connect-failed("+e.Address+")", e.Err) }
func (e Disconnected) String() string  { return withErr("disconnected("+e.Address+")", e.Err) }
func (e ServicesDiscovered) String() string {
	return withErr(fmt.Sprintf("services-discovered(%d)", len(e.Services)), e.Err)
}
func (e CharacteristicsDiscovered) String() string {
	return withErr(fmt.Sprintf("characteristics-discovered(%s, %d)", e.Service, len(e.Characteristics)), e.Err)
}
func (e Subscribed) String() string { return withErr("subscribed("+e.Characteristic+")", e.Err) }
func (e ValueUpdated) String() string {
	return withErr(fmt.Sprintf("value-updated(%s % X)", e.Characteristic, e.Data), e.Err)
}
func (e WriteCompleted) String() string { return withErr("write-completed("+e.Characteristic+")", e.Err) }

func withErr(s string, err error) string {
	if err == nil {
		return s
	}
	return s + ": " + err.Error()
}
