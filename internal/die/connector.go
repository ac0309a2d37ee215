package die

import (
	"context"

	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/radio"
)

// RadioFactory opens a fresh radio for one connection.
type RadioFactory func() (radio.Radio, error)

// Connector adapts Connect to a device.Connector. Every connection gets its own radio.
func Connector(newRadio RadioFactory, opts Options) device.Connector {
	return func(ctx context.Context, h device.Handle) (device.Accessory, error) {
		r, err := newRadio()
		if err != nil {
			return nil, radio.NormalizeError(err)
		}
		d, err := Connect(ctx, h, r, opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
