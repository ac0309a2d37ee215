package radiotest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/dicelink/internal/radio"
)

func next(t *testing.T, r *Radio) radio.Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestRadioRecordsAndInjects(t *testing.T) {
	r := New()
	defer r.Close()

	r.Write("ff", "ffa0", []byte{0}, true)
	r.Emit(radio.Connected{Address: "aa"})

	assert.Equal(t, radio.Connected{Address: "aa"}, next(t, r))
	calls := r.CallsOf(OpWrite)
	require.Len(t, calls, 1)
	assert.Equal(t, []byte{0}, calls[0].Data)
	assert.True(t, calls[0].WithResponse)
}

func TestPeripheralAnswersConnectAndDiscovery(t *testing.T) {
	p := &Peripheral{
		Address:    "aa:bb",
		Advertised: []string{"d3a1"},
		Services: []Service{{
			UUID:            "ff",
			Characteristics: []radio.Characteristic{{UUID: "ffa0", Properties: radio.PropWrite}},
		}},
	}
	r := NewWithPeripheral(p)
	defer r.Close()

	r.Scan([]string{"d3a1"}, time.Second)
	assert.Equal(t, "aa:bb", next(t, r).(radio.PeripheralDiscovered).Address)

	r.Connect("AA:BB")
	assert.Equal(t, radio.Connected{Address: "aa:bb"}, next(t, r))

	r.DiscoverServices(nil)
	assert.Equal(t, []string{"ff"}, next(t, r).(radio.ServicesDiscovered).Services)

	r.DiscoverCharacteristics("ff", []string{"ffa0"})
	chars := next(t, r).(radio.CharacteristicsDiscovered)
	require.Len(t, chars.Characteristics, 1)
	assert.Equal(t, "ff", chars.Characteristics[0].Service)
}

func TestPeripheralConnectFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewWithPeripheral(&Peripheral{Address: "aa", ConnectErr: boom})
	defer r.Close()

	r.Connect("aa")

	failed, ok := next(t, r).(radio.ConnectFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, boom)
}

func TestHiddenPeripheralStopsScan(t *testing.T) {
	r := NewWithPeripheral(&Peripheral{Address: "aa", Hidden: true})
	defer r.Close()

	r.Scan(nil, time.Second)

	assert.Equal(t, radio.ScanStopped{}, next(t, r))
}

func TestWaitFor(t *testing.T) {
	r := New()
	defer r.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.PowerOn()
	}()

	_, ok := r.WaitFor(OpPowerOn, time.Second)
	assert.True(t, ok)

	_, ok = r.WaitFor(OpConnect, 20*time.Millisecond)
	assert.False(t, ok)
}
