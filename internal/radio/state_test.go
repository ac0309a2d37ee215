package radio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnknown, "unknown"},
		{StateResetting, "resetting"},
		{StateUnsupported, "unsupported"},
		{StateUnauthorized, "unauthorized"},
		{StatePoweredOff, "powered-off"},
		{StatePoweredOn, "powered-on"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStateUsable(t *testing.T) {
	assert.True(t, StatePoweredOff.Usable(), "a powered-off adapter MAY still be turned on")
	assert.True(t, StateResetting.Usable())
	assert.False(t, StateUnsupported.Usable())
	assert.False(t, StateUnauthorized.Usable())
}

func TestPropertyHelpers(t *testing.T) {
	p := PropWrite | PropNotify

	assert.True(t, p.Has(PropWrite))
	assert.False(t, p.Has(PropRead))
	assert.True(t, p.CanNotify())
	assert.True(t, PropIndicate.CanNotify())
	assert.False(t, PropRead.CanNotify())
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "adapter-state(powered-on)", AdapterStateChanged{State: StatePoweredOn}.String())
	assert.Equal(t, "connect-failed(aa): boom", ConnectFailed{Address: "aa", Err: errors.New("boom")}.String())
	assert.Equal(t, "value-updated(ffa1 04)", ValueUpdated{Characteristic: "ffa1", Data: []byte{4}}.String())
}
