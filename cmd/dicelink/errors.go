package main

import (
	"errors"
	"fmt"

	"github.com/srg/dicelink/internal/device"
)

// Command-level errors
var (
	// ErrNoValue indicates the die stayed busy and never reported a face.
	ErrNoValue = errors.New("die did not report a value")

	// ErrConnectionLost indicates the die disconnected while a command was in progress.
	ErrConnectionLost = errors.New("connection lost")
)

const reselectHint = "select the die again to retry"

// FormatUserError turns an error into a message for people, not logs.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var msg string
	switch device.KindOf(err) {
	case device.PeripheralNotFound:
		msg = "the die could not be found; make sure it is awake and nearby"
	case device.PeripheralNotConnected:
		msg = "the die is not connected; check that Bluetooth is on"
	case device.PeripheralNotAuthorized:
		msg = "this app is not allowed to use Bluetooth; grant Bluetooth access in system settings"
	case device.PeripheralNotSupported:
		msg = "Bluetooth Low Energy is not available on this machine"
	case device.Timeout:
		msg = "the die did not respond in time"
	case device.NoServices:
		msg = "the device does not look like a die (required services missing)"
	case device.NoCharacteristics:
		msg = "the die firmware is incompatible (required characteristics missing)"
	case device.PassthroughKind:
		var derr *device.Error
		errors.As(err, &derr)
		msg = fmt.Sprintf("Bluetooth error: %v", derr.Err)
	default:
		switch {
		case errors.Is(err, ErrConnectionLost):
			msg = "the die disconnected"
		case errors.Is(err, ErrNoValue):
			msg = "the die did not report a rolled value"
		default:
			return err.Error()
		}
	}
	return msg + "; " + reselectHint
}
