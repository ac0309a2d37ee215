package radio

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/dicelink/internal/device"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want device.ErrorKind
	}{
		{"darwin unsupported", errors.New("central manager has invalid state: have=2 want=5: is Bluetooth turned on?"), device.PeripheralNotSupported},
		{"darwin unauthorized", errors.New("central manager has invalid state: have=3 want=5: is Bluetooth turned on?"), device.PeripheralNotAuthorized},
		{"darwin powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.PeripheralNotConnected},
		{"linux no adapter", errors.New("can't init hci: no devices available: (hci0: can't down device: no such device)"), device.PeripheralNotSupported},
		{"linux permission", errors.New("can't init hci: operation not permitted"), device.PeripheralNotAuthorized},
		{"disconnected", errors.New("device disconnected"), device.PeripheralNotConnected},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), device.Timeout},
		{"unknown", errors.New("att: unlikely error"), device.PassthroughKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)

			require.Error(t, got)
			assert.Equal(t, tt.want, device.KindOf(got))
			assert.ErrorIs(t, got, tt.err, "normalized error MUST keep the stack error as its cause")
		})
	}
}

func TestNormalizeErrorKeepsTypedErrors(t *testing.T) {
	typed := device.NewError(device.NoServices, nil, "nothing")

	assert.Same(t, typed, NormalizeError(typed))
	assert.NoError(t, NormalizeError(nil))
}

func TestStateFromError(t *testing.T) {
	st, ok := StateFromError(errors.New("central manager has invalid state: have=2 want=5"))
	assert.True(t, ok)
	assert.Equal(t, StateUnsupported, st)

	st, ok = StateFromError(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))
	assert.True(t, ok)
	assert.Equal(t, StatePoweredOff, st)

	_, ok = StateFromError(errors.New("random"))
	assert.False(t, ok)
}
