package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleWithAddressCopies(t *testing.T) {
	h := Handle{ID: "die-1", Kind: KindDie}

	bound := h.WithAddress("AA:BB:CC:DD:EE:FF")

	assert.Equal(t, "", h.Address, "original handle MUST stay unchanged")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", bound.Address)
	assert.Equal(t, "die-1 (AA:BB:CC:DD:EE:FF)", bound.String())
	assert.Equal(t, "die-1", h.String())
}

func TestStateHasValue(t *testing.T) {
	assert.False(t, State{Busy: true}.HasValue())
	assert.True(t, State{Value: 4}.HasValue())
}

func TestProximityString(t *testing.T) {
	assert.Equal(t, "immediate", ProximityImmediate.String())
	assert.Equal(t, "default", ProximityDefault.String())
}
