package radio

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/srg/dicelink/internal/device"
)

var invalidStateRe = regexp.MustCompile(`invalid state: have=(\d+)`)

// NormalizeError maps radio stack error messages onto device error kinds.
// The original error is kept as the cause; unrecognized errors become Passthrough.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var derr *device.Error
	if errors.As(err, &derr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return device.NewError(device.Timeout, err, "radio operation timed out")
	}

	msg := strings.ToLower(err.Error())
	if m := invalidStateRe.FindStringSubmatch(msg); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			switch State(n) {
			case StateUnsupported:
				return device.NewError(device.PeripheralNotSupported, err, "bluetooth is not supported")
			case StateUnauthorized:
				return device.NewError(device.PeripheralNotAuthorized, err, "bluetooth access is not authorized")
			case StatePoweredOff:
				return device.NewError(device.PeripheralNotConnected, err, "bluetooth is turned off")
			}
		}
	}

	switch {
	case strings.Contains(msg, "not supported"), strings.Contains(msg, "no such device"):
		return device.NewError(device.PeripheralNotSupported, err, "bluetooth is not supported")
	case strings.Contains(msg, "not authorized"), strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"):
		return device.NewError(device.PeripheralNotAuthorized, err, "bluetooth access is not authorized")
	case strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"),
		strings.Contains(msg, "not connected"):
		return device.NewError(device.PeripheralNotConnected, err, "peripheral is not connected")
	case strings.Contains(msg, "not found"):
		return device.NewError(device.PeripheralNotFound, err, "peripheral not found")
	default:
		return device.Passthrough(err)
	}
}

// StateFromError extracts the adapter state an initialization error implies.
// ok is false when err does not describe an adapter state.
func StateFromError(err error) (State, bool) {
	switch device.KindOf(NormalizeError(err)) {
	case device.PeripheralNotSupported:
		return StateUnsupported, true
	case device.PeripheralNotAuthorized:
		return StateUnauthorized, true
	}
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "turned off") {
		return StatePoweredOff, true
	}
	if err != nil {
		if m := invalidStateRe.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil && n <= int(StatePoweredOn) {
				return State(n), true
			}
		}
	}
	return StateUnknown, false
}
