package die

import (
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInitTimeout = 20 * time.Second
	DefaultScanWindow  = 10 * time.Second
)

// ProgressCallback is invoked on every phase transition, from the driver goroutine.
type ProgressCallback func(phase Phase)

// Options configures Connect. Zero values take the defaults below.
type Options struct {
	Logger *logrus.Logger

	// InitTimeout bounds the whole connect-and-initialize sequence.
	InitTimeout time.Duration `default:"20s"`

	// ScanWindow bounds the active scan when the handle has no address.
	ScanWindow time.Duration `default:"10s"`

	// UpdatesBuffer is the capacity of the Updates channel; older states are dropped.
	UpdatesBuffer int `default:"16"`

	Progress ProgressCallback
}

func (o Options) withDefaults() Options {
	defaults.SetDefaults(&o)
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}
