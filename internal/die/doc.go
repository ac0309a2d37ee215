// Package die drives a Seeed XIAO ESP32 smart die over BLE.
//
// Connect runs the initialization sequence: adapter power-on, peripheral
// acquisition (known address or active scan), connection, service discovery,
// characteristic discovery and the readiness gate. A pure state machine
// (step) decides every transition; a single driver goroutine feeds it radio
// events and command requests and runs the effects it returns. A timeout
// guard races the sequence, and the pending init accepts exactly one result.
//
// Once ready, a Die accepts Roll and PowerOff and reports rolled values
// through State and Updates until it is disconnected.
package die
