package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/dicelink/internal/device"
)

func TestFormatUserError(t *testing.T) {
	// GOAL: Verify every failure kind maps to a readable message with a retry hint
	//
	// TEST SCENARIO: typed and command errors → FormatUserError → expected message

	tests := []struct {
		name     string
		err      error
		contains string
		hint     bool
	}{
		{"nil", nil, "", false},
		{"not found", device.NewError(device.PeripheralNotFound, nil, "scan ended"), "could not be found", true},
		{"not connected", device.ErrPeripheralNotConnected, "not connected", true},
		{"not authorized", device.ErrPeripheralNotAuthorized, "not allowed to use Bluetooth", true},
		{"not supported", device.ErrPeripheralNotSupported, "not available on this machine", true},
		{"timeout", device.NewError(device.Timeout, nil, "initialization exceeded 20s"), "did not respond in time", true},
		{"no services", device.ErrNoServices, "required services missing", true},
		{"no characteristics", device.ErrNoCharacteristics, "required characteristics missing", true},
		{"passthrough", device.Passthrough(errors.New("hci: command disallowed")), "Bluetooth error: hci: command disallowed", true},
		{"wrapped kind", fmt.Errorf("roll: %w", device.ErrNoServices), "required services missing", true},
		{"connection lost", ErrConnectionLost, "the die disconnected", true},
		{"no value", fmt.Errorf("waiting: %w", ErrNoValue), "did not report a rolled value", true},
		{"other", context.DeadlineExceeded, "context deadline exceeded", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			if tt.err == nil {
				assert.Empty(t, msg, "nil error MUST produce no message")
				return
			}
			assert.Contains(t, msg, tt.contains)
			if tt.hint {
				assert.Contains(t, msg, reselectHint, "typed failures MUST suggest selecting again")
			} else {
				assert.NotContains(t, msg, reselectHint)
			}
		})
	}
}
