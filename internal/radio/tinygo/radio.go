// Package tinygo implements radio.Radio on top of tinygo.org/x/bluetooth.
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/groutine"
	"github.com/srg/dicelink/internal/radio"
	"tinygo.org/x/bluetooth"
)

// readBufferSize bounds a single characteristic read.
const readBufferSize = 512

// assumedProperties is reported for every characteristic: the tinygo stack
// does not expose GATT properties on all platforms.
const assumedProperties = radio.PropRead | radio.PropWrite | radio.PropNotify

// Radio is a tinygo bluetooth backed radio.Radio.
type Radio struct {
	worker  *radio.Worker
	logger  *logrus.Logger
	adapter adapter
	connect func(ctx context.Context, address string) (gattDevice, error)

	mu       sync.Mutex
	peer     gattDevice
	address  string
	scanning bool
	services map[string]gattService
	chars    map[string]gattCharacteristic
}

var _ radio.Radio = (*Radio)(nil)

// New creates a radio using the default system adapter.
func New(logger *logrus.Logger) *Radio {
	a := bluetooth.DefaultAdapter
	r := newRadio(a, logger)
	r.connect = func(ctx context.Context, address string) (gattDevice, error) {
		addr, err := parseAddress(address)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", address, err)
		}

		return dialWithin(ctx, r.logger, func() (gattDevice, error) {
			dev, err := a.Connect(addr, bluetooth.ConnectionParams{})
			if err != nil {
				return nil, err
			}
			return tinygoDevice{dev: dev}, nil
		})
	}
	return r
}

// dialWithin runs dial, which the stack cannot cancel, and gives up when ctx
// ends. A link that completes after that is disconnected instead of leaked.
func dialWithin(ctx context.Context, logger *logrus.Logger, dial func() (gattDevice, error)) (gattDevice, error) {
	type result struct {
		dev gattDevice
		err error
	}
	ch := make(chan result, 1)
	groutine.Go(context.Background(), "tinygo-connect", func(context.Context) {
		dev, err := dial()
		ch <- result{dev: dev, err: err}
	})

	select {
	case res := <-ch:
		return res.dev, res.err
	case <-ctx.Done():
		groutine.Go(context.Background(), "tinygo-connect-abandoned", func(context.Context) {
			res := <-ch
			if res.err != nil {
				return
			}
			logger.Debug("Connection completed after it was abandoned, disconnecting")
			if err := res.dev.Disconnect(); err != nil {
				logger.WithField("error", err).Warn("Failed to disconnect abandoned connection")
			}
		})
		return nil, ctx.Err()
	}
}

func newRadio(a adapter, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		worker:   radio.NewWorker("tinygo-radio", radio.DefaultEventBuffer, logger),
		logger:   logger,
		adapter:  a,
		services: make(map[string]gattService),
		chars:    make(map[string]gattCharacteristic),
	}
}

func (r *Radio) Events() <-chan radio.Event {
	return r.worker.Events()
}

func (r *Radio) PowerOn() {
	r.worker.Submit("power-on", func(ctx context.Context) {
		if err := r.adapter.Enable(); err != nil {
			st, ok := radio.StateFromError(err)
			if !ok {
				st = radio.StateUnsupported
			}
			r.logger.WithFields(logrus.Fields{
				"state": st.String(),
				"error": err,
			}).Error("Failed to enable BLE adapter")
			r.worker.Emit(radio.AdapterStateChanged{State: st})
			return
		}

		r.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
			if connected {
				return
			}
			r.onLinkLost(dev.Address.String())
		})
		r.worker.Emit(radio.AdapterStateChanged{State: radio.StatePoweredOn})
	})
}

func (r *Radio) onLinkLost(address string) {
	r.mu.Lock()
	ours := r.peer != nil && strings.EqualFold(r.address, address)
	if ours {
		r.peer = nil
	}
	r.mu.Unlock()

	if !ours {
		return
	}
	r.logger.WithField("address", address).Warn("BLE stack reported disconnection")
	r.worker.Emit(radio.Disconnected{Address: address})
}

// Scan blocks the adapter until StopScan, so it runs on its own goroutine.
func (r *Radio) Scan(services []string, window time.Duration) {
	r.worker.Submit("scan", func(ctx context.Context) {
		filter, err := toUUIDs(services)
		if err != nil {
			r.worker.Emit(radio.ScanStopped{Err: err})
			return
		}

		r.mu.Lock()
		r.scanning = true
		r.mu.Unlock()

		scanCtx, cancel := context.WithTimeout(ctx, window)
		groutine.Go(scanCtx, "tinygo-scan-window", func(scanCtx context.Context) {
			<-scanCtx.Done()
			if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
				r.StopScan()
			}
		})
		groutine.Go(ctx, "tinygo-scan", func(context.Context) {
			defer cancel()
			err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
				advertised, ok := advertises(result, filter)
				if !ok {
					return
				}
				r.worker.Emit(radio.PeripheralDiscovered{
					Address:  result.Address.String(),
					Name:     result.LocalName(),
					RSSI:     int(result.RSSI),
					Services: advertised,
				})
			})
			r.worker.Emit(radio.ScanStopped{Err: radio.NormalizeError(err)})
		})
	})
}

// advertises reports which filter services the result carries.
func advertises(result bluetooth.ScanResult, filter []bluetooth.UUID) ([]string, bool) {
	if len(filter) == 0 {
		return nil, true
	}
	var found []string
	for _, u := range filter {
		if result.HasServiceUUID(u) {
			found = append(found, fromUUID(u))
		}
	}
	return found, len(found) > 0
}

func (r *Radio) StopScan() {
	r.mu.Lock()
	scanning := r.scanning
	r.scanning = false
	r.mu.Unlock()

	if !scanning {
		return
	}
	if err := r.adapter.StopScan(); err != nil {
		r.logger.WithField("error", err).Debug("Failed to stop scan")
	}
}

func (r *Radio) Connect(address string) {
	r.worker.Submit("connect", func(ctx context.Context) {
		if strings.TrimSpace(address) == "" {
			r.worker.Emit(radio.ConnectFailed{Address: address, Err: fmt.Errorf("device address is empty")})
			return
		}

		peer, err := r.connect(ctx, address)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   err,
			}).Error("Failed to connect to BLE device")
			r.worker.Emit(radio.ConnectFailed{Address: address, Err: radio.NormalizeError(err)})
			return
		}

		r.mu.Lock()
		r.peer = peer
		r.address = address
		r.mu.Unlock()
		r.worker.Emit(radio.Connected{Address: address})
	})
}

func (r *Radio) DiscoverServices(filter []string) {
	r.worker.Submit("discover-services", func(ctx context.Context) {
		peer, err := r.connected()
		if err == nil {
			var uuids []bluetooth.UUID
			if uuids, err = toUUIDs(filter); err == nil {
				var svcs []gattService
				if svcs, err = peer.DiscoverServices(uuids); err == nil {
					found := make([]string, 0, len(svcs))
					r.mu.Lock()
					for _, s := range svcs {
						id := fromUUID(s.UUID())
						r.services[id] = s
						found = append(found, id)
					}
					r.mu.Unlock()
					r.worker.Emit(radio.ServicesDiscovered{Services: found})
					return
				}
			}
		}
		r.worker.Emit(radio.ServicesDiscovered{Err: radio.NormalizeError(err)})
	})
}

func (r *Radio) DiscoverCharacteristics(service string, filter []string) {
	r.worker.Submit("discover-characteristics", func(ctx context.Context) {
		svcID := device.NormalizeUUID(service)
		fail := func(err error) {
			r.worker.Emit(radio.CharacteristicsDiscovered{Service: svcID, Err: err})
		}

		if _, err := r.connected(); err != nil {
			fail(err)
			return
		}
		r.mu.Lock()
		svc := r.services[svcID]
		r.mu.Unlock()
		if svc == nil {
			fail(device.NewError(device.NoServices, nil, "service %s was not discovered", svcID))
			return
		}
		uuids, err := toUUIDs(filter)
		if err != nil {
			fail(err)
			return
		}

		chars, err := svc.DiscoverCharacteristics(uuids)
		if err != nil {
			fail(radio.NormalizeError(err))
			return
		}

		found := make([]radio.Characteristic, 0, len(chars))
		r.mu.Lock()
		for _, c := range chars {
			id := fromUUID(c.UUID())
			r.chars[svcID+"/"+id] = c
			found = append(found, radio.Characteristic{Service: svcID, UUID: id, Properties: assumedProperties})
		}
		r.mu.Unlock()
		r.worker.Emit(radio.CharacteristicsDiscovered{Service: svcID, Characteristics: found})
	})
}

func (r *Radio) Subscribe(service, characteristic string) {
	r.worker.Submit("subscribe", func(ctx context.Context) {
		svcID, charID := device.NormalizeUUID(service), device.NormalizeUUID(characteristic)
		c, err := r.characteristic(svcID, charID)
		if err == nil {
			err = c.EnableNotifications(func(buf []byte) {
				r.worker.Emit(radio.ValueUpdated{
					Service:        svcID,
					Characteristic: charID,
					Data:           append([]byte(nil), buf...),
				})
			})
		}
		r.worker.Emit(radio.Subscribed{Service: svcID, Characteristic: charID, Err: radio.NormalizeError(err)})
	})
}

func (r *Radio) Read(service, characteristic string) {
	r.worker.Submit("read", func(ctx context.Context) {
		svcID, charID := device.NormalizeUUID(service), device.NormalizeUUID(characteristic)
		ev := radio.ValueUpdated{Service: svcID, Characteristic: charID, Read: true}

		c, err := r.characteristic(svcID, charID)
		if err == nil {
			buf := make([]byte, readBufferSize)
			var n int
			if n, err = c.Read(buf); err == nil {
				ev.Data = buf[:n]
			}
		}
		ev.Err = radio.NormalizeError(err)
		r.worker.Emit(ev)
	})
}

func (r *Radio) Write(service, characteristic string, data []byte, withResponse bool) {
	payload := append([]byte(nil), data...)
	r.worker.Submit("write", func(ctx context.Context) {
		svcID, charID := device.NormalizeUUID(service), device.NormalizeUUID(characteristic)
		c, err := r.characteristic(svcID, charID)
		if err == nil {
			if withResponse {
				_, err = c.Write(payload)
			} else {
				_, err = c.WriteWithoutResponse(payload)
			}
		}
		r.worker.Emit(radio.WriteCompleted{Service: svcID, Characteristic: charID, Err: radio.NormalizeError(err)})
	})
}

func (r *Radio) CancelConnection() {
	r.worker.Submit("cancel-connection", func(ctx context.Context) {
		r.disconnect()
	})
}

func (r *Radio) Close() error {
	r.StopScan()
	r.worker.Close()
	r.disconnect()
	return nil
}

func (r *Radio) disconnect() {
	r.mu.Lock()
	peer := r.peer
	address := r.address
	r.peer = nil
	r.services = make(map[string]gattService)
	r.chars = make(map[string]gattCharacteristic)
	r.mu.Unlock()

	if peer == nil {
		return
	}
	if err := peer.Disconnect(); err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Failed to disconnect")
	}
}

func (r *Radio) connected() (gattDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peer == nil {
		return nil, device.NewError(device.PeripheralNotConnected, nil, "no connection")
	}
	return r.peer, nil
}

func (r *Radio) characteristic(service, characteristic string) (gattCharacteristic, error) {
	if _, err := r.connected(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	c := r.chars[service+"/"+characteristic]
	r.mu.Unlock()
	if c == nil {
		return nil, device.NewError(device.NoCharacteristics, nil, "characteristic %s not found in service %s", characteristic, service)
	}
	return c, nil
}
