// Package goble implements radio.Radio on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/groutine"
	"github.com/srg/dicelink/internal/radio"
)

// Radio is a go-ble backed radio.Radio. One Radio drives at most one peripheral.
type Radio struct {
	worker *radio.Worker
	logger *logrus.Logger

	mu         sync.Mutex
	dev        ble.Device
	client     gattClient
	address    string
	scanCancel context.CancelFunc
	services   map[string]*ble.Service
	chars      map[string]*ble.Characteristic
}

var _ radio.Radio = (*Radio)(nil)

// New creates a go-ble radio. The platform device is only opened on PowerOn.
func New(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		worker:   radio.NewWorker("goble-radio", radio.DefaultEventBuffer, logger),
		logger:   logger,
		services: make(map[string]*ble.Service),
		chars:    make(map[string]*ble.Characteristic),
	}
}

func (r *Radio) Events() <-chan radio.Event {
	return r.worker.Events()
}

func (r *Radio) PowerOn() {
	r.worker.Submit("power-on", func(ctx context.Context) {
		dev, err := DeviceFactory()
		if err != nil {
			st, ok := radio.StateFromError(err)
			if !ok {
				st = radio.StateUnsupported
			}
			r.logger.WithFields(logrus.Fields{
				"state": st.String(),
				"error": err,
			}).Error("Failed to open BLE device")
			r.worker.Emit(radio.AdapterStateChanged{State: st})
			return
		}

		r.mu.Lock()
		r.dev = dev
		r.mu.Unlock()

		r.logger.Debug("BLE device opened")
		r.worker.Emit(radio.AdapterStateChanged{State: radio.StatePoweredOn})
	})
}

// Scan runs outside the worker so StopScan and other requests are not queued behind it.
func (r *Radio) Scan(services []string, window time.Duration) {
	r.worker.Submit("scan", func(ctx context.Context) {
		dev := r.device()
		if dev == nil {
			r.worker.Emit(radio.ScanStopped{Err: device.NewError(device.PeripheralNotSupported, nil, "adapter not powered on")})
			return
		}

		scanCtx, cancel := context.WithTimeout(ctx, window)
		r.mu.Lock()
		r.scanCancel = cancel
		r.mu.Unlock()

		filter := device.NormalizeUUIDs(services)
		groutine.Go(scanCtx, "goble-scan", func(scanCtx context.Context) {
			defer cancel()
			err := dev.Scan(scanCtx, false, func(adv ble.Advertisement) {
				advertised := advertisedServices(adv)
				if !matches(filter, advertised) {
					return
				}
				r.worker.Emit(radio.PeripheralDiscovered{
					Address:  adv.Addr().String(),
					Name:     adv.LocalName(),
					RSSI:     adv.RSSI(),
					Services: advertised,
				})
			})
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				err = nil
			}
			r.worker.Emit(radio.ScanStopped{Err: radio.NormalizeError(err)})
		})
	})
}

func (r *Radio) StopScan() {
	r.mu.Lock()
	cancel := r.scanCancel
	r.scanCancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Radio) Connect(address string) {
	r.worker.Submit("connect", func(ctx context.Context) {
		dev := r.device()
		if dev == nil {
			r.worker.Emit(radio.ConnectFailed{Address: address, Err: device.NewError(device.PeripheralNotSupported, nil, "adapter not powered on")})
			return
		}
		if strings.TrimSpace(address) == "" {
			r.worker.Emit(radio.ConnectFailed{Address: address, Err: fmt.Errorf("device address is empty")})
			return
		}

		r.logger.WithField("address", address).Debug("Dialing BLE device...")
		client, err := dial(ctx, dev, address)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   err,
			}).Error("Failed to dial BLE device")
			r.worker.Emit(radio.ConnectFailed{Address: address, Err: radio.NormalizeError(err)})
			return
		}

		r.mu.Lock()
		r.client = client
		r.address = address
		r.mu.Unlock()

		r.monitor(client, address)
		r.worker.Emit(radio.Connected{Address: address})
	})
}

// monitor reports link loss when the client exposes it (CoreBluetooth does).
func (r *Radio) monitor(client gattClient, address string) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		r.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	groutine.Go(r.worker.Context(), "goble-connection-monitor", func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			r.logger.WithField("address", address).Warn("BLE stack reported disconnection")
			r.mu.Lock()
			if r.client == client {
				r.client = nil
			}
			r.mu.Unlock()
			r.worker.Emit(radio.Disconnected{Address: address})
		case <-ctx.Done():
		}
	})
}

func (r *Radio) DiscoverServices(filter []string) {
	r.worker.Submit("discover-services", func(ctx context.Context) {
		client, err := r.connected()
		if err != nil {
			r.worker.Emit(radio.ServicesDiscovered{Err: err})
			return
		}
		uuids, err := parseUUIDs(filter)
		if err != nil {
			r.worker.Emit(radio.ServicesDiscovered{Err: err})
			return
		}

		svcs, err := client.DiscoverServices(uuids)
		if err != nil {
			r.worker.Emit(radio.ServicesDiscovered{Err: radio.NormalizeError(err)})
			return
		}

		found := make([]string, 0, len(svcs))
		r.mu.Lock()
		for _, s := range svcs {
			uuid := device.NormalizeUUID(s.UUID.String())
			r.services[uuid] = s
			found = append(found, uuid)
		}
		r.mu.Unlock()

		r.logger.WithField("services", found).Debug("Services discovered")
		r.worker.Emit(radio.ServicesDiscovered{Services: found})
	})
}

func (r *Radio) DiscoverCharacteristics(service string, filter []string) {
	r.worker.Submit("discover-characteristics", func(ctx context.Context) {
		svcUUID := device.NormalizeUUID(service)
		fail := func(err error) {
			r.worker.Emit(radio.CharacteristicsDiscovered{Service: svcUUID, Err: err})
		}

		client, err := r.connected()
		if err != nil {
			fail(err)
			return
		}
		r.mu.Lock()
		svc := r.services[svcUUID]
		r.mu.Unlock()
		if svc == nil {
			fail(device.NewError(device.NoServices, nil, "service %s was not discovered", svcUUID))
			return
		}
		uuids, err := parseUUIDs(filter)
		if err != nil {
			fail(err)
			return
		}

		bleChars, err := client.DiscoverCharacteristics(uuids, svc)
		if err != nil {
			fail(radio.NormalizeError(err))
			return
		}

		found := make([]radio.Characteristic, 0, len(bleChars))
		r.mu.Lock()
		for _, c := range bleChars {
			uuid := device.NormalizeUUID(c.UUID.String())
			r.chars[charKey(svcUUID, uuid)] = c
			found = append(found, radio.Characteristic{
				Service:    svcUUID,
				UUID:       uuid,
				Properties: properties(c.Property),
			})
		}
		r.mu.Unlock()

		r.worker.Emit(radio.CharacteristicsDiscovered{Service: svcUUID, Characteristics: found})
	})
}

func (r *Radio) Subscribe(service, characteristic string) {
	r.worker.Submit("subscribe", func(ctx context.Context) {
		svcUUID, charUUID := device.NormalizeUUID(service), device.NormalizeUUID(characteristic)
		client, c, err := r.characteristic(svcUUID, charUUID)
		if err != nil {
			r.worker.Emit(radio.Subscribed{Service: svcUUID, Characteristic: charUUID, Err: err})
			return
		}

		// Linux needs the CCCD handle; CoreBluetooth resolves it itself.
		if c.CCCD == nil {
			if _, err := client.DiscoverDescriptors(nil, c); err != nil {
				r.logger.WithFields(logrus.Fields{
					"characteristic": charUUID,
					"error":          err,
				}).Debug("Descriptor discovery failed")
			}
		}

		indicate := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
		err = client.Subscribe(c, indicate, func(data []byte) {
			r.worker.Emit(radio.ValueUpdated{
				Service:        svcUUID,
				Characteristic: charUUID,
				Data:           append([]byte(nil), data...),
			})
		})
		r.worker.Emit(radio.Subscribed{Service: svcUUID, Characteristic: charUUID, Err: radio.NormalizeError(err)})
	})
}

func (r *Radio) Read(service, characteristic string) {
	r.worker.Submit("read", func(ctx context.Context) {
		svcUUID, charUUID := device.NormalizeUUID(service), device.NormalizeUUID(characteristic)
		client, c, err := r.characteristic(svcUUID, charUUID)
		if err != nil {
			r.worker.Emit(radio.ValueUpdated{Service: svcUUID, Characteristic: charUUID, Read: true, Err: err})
			return
		}

		data, err := client.ReadCharacteristic(c)
		r.worker.Emit(radio.ValueUpdated{
			Service:        svcUUID,
			Characteristic: charUUID,
			Data:           data,
			Read:           true,
			Err:            radio.NormalizeError(err),
		})
	})
}

func (r *Radio) Write(service, characteristic string, data []byte, withResponse bool) {
	payload := append([]byte(nil), data...)
	r.worker.Submit("write", func(ctx context.Context) {
		svcUUID, charUUID := device.NormalizeUUID(service), device.NormalizeUUID(characteristic)
		client, c, err := r.characteristic(svcUUID, charUUID)
		if err == nil {
			err = radio.NormalizeError(client.WriteCharacteristic(c, payload, !withResponse))
		}
		r.worker.Emit(radio.WriteCompleted{Service: svcUUID, Characteristic: charUUID, Err: err})
	})
}

func (r *Radio) CancelConnection() {
	r.worker.Submit("cancel-connection", func(ctx context.Context) {
		r.cancelConnection()
	})
}

// Close stops scanning, drops the connection and stops the platform device.
func (r *Radio) Close() error {
	r.StopScan()
	r.worker.Close()
	r.cancelConnection()

	r.mu.Lock()
	dev := r.dev
	r.dev = nil
	r.mu.Unlock()

	if dev == nil {
		return nil
	}
	if err := dev.Stop(); err != nil {
		return radio.NormalizeError(err)
	}
	return nil
}

func (r *Radio) cancelConnection() {
	r.mu.Lock()
	client := r.client
	address := r.address
	r.client = nil
	r.services = make(map[string]*ble.Service)
	r.chars = make(map[string]*ble.Characteristic)
	r.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.CancelConnection(); err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Failed to cancel connection")
	}
}

func (r *Radio) device() ble.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dev
}

func (r *Radio) connected() (gattClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, device.NewError(device.PeripheralNotConnected, nil, "no connection")
	}
	return r.client, nil
}

func (r *Radio) characteristic(service, characteristic string) (gattClient, *ble.Characteristic, error) {
	client, err := r.connected()
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	c := r.chars[charKey(service, characteristic)]
	r.mu.Unlock()
	if c == nil {
		return nil, nil, device.NewError(device.NoCharacteristics, nil, "characteristic %s not found in service %s", characteristic, service)
	}
	return client, c, nil
}

func charKey(service, characteristic string) string {
	return service + "/" + characteristic
}

func parseUUIDs(ids []string) ([]ble.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	uuids := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := ble.Parse(device.NormalizeUUID(id))
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", id, err)
		}
		uuids = append(uuids, u)
	}
	return uuids, nil
}

func advertisedServices(adv ble.Advertisement) []string {
	out := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		out = append(out, device.NormalizeUUID(u.String()))
	}
	return out
}

func matches(filter, advertised []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, a := range advertised {
		for _, f := range filter {
			if a == f {
				return true
			}
		}
	}
	return false
}

func properties(p ble.Property) radio.Property {
	var out radio.Property
	if p&ble.CharRead != 0 {
		out |= radio.PropRead
	}
	if p&ble.CharWrite != 0 {
		out |= radio.PropWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= radio.PropWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		out |= radio.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= radio.PropIndicate
	}
	return out
}
