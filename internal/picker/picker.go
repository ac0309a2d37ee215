// Package picker discovers nearby dice and turns them into selectable handles.
// It stands in for a system accessory picker.
package picker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/die"
	"github.com/srg/dicelink/internal/radio"
	"github.com/srg/dicelink/internal/ringchan"
)

// handleNamespace seeds the name-based handle IDs, so one die always maps to the same ID.
var handleNamespace = uuid.MustParse("6f1c2a9e-4b7d-4e0a-9c1f-3d8b5e2a7c40")

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// CandidateEventType marks if the candidate was newly discovered or updated
type CandidateEventType int

const (
	EventNew CandidateEventType = iota
	EventUpdated
)

// Candidate is a die seen during a scan.
type Candidate struct {
	Handle    device.Handle
	Name      string
	RSSI      int
	Sightings int
	LastSeen  time.Time
}

type CandidateEvent struct {
	Type      CandidateEventType
	Candidate Candidate
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration  time.Duration
	AllowList []string
	BlockList []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{Duration: die.DefaultScanWindow}
}

// HandleID derives the stable handle ID for a hardware address.
func HandleID(address string) string {
	return uuid.NewSHA1(handleNamespace, []byte(strings.ToUpper(address))).String()
}

// Picker collects dice advertising the die service.
type Picker struct {
	logger *logrus.Logger
	events *ringchan.RingChannel[CandidateEvent]

	mu         sync.Mutex
	candidates *orderedmap.OrderedMap[string, *Candidate]
	now        func() time.Time
}

// New creates a picker
func New(logger *logrus.Logger) *Picker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Picker{
		logger:     logger,
		events:     ringchan.New[CandidateEvent](100),
		candidates: orderedmap.New[string, *Candidate](),
		now:        time.Now,
	}
}

// Events return a read-only channel of candidate events
func (p *Picker) Events() <-chan CandidateEvent {
	return p.events.C()
}

// Scan powers r on, scans for dice and returns candidates in discovery order.
// Cancelling ctx ends the scan early and returns what was found so far.
// The caller keeps ownership of r.
func (p *Picker) Scan(ctx context.Context, r radio.Radio, opts *ScanOptions, progress ProgressCallback) ([]Candidate, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}

	p.mu.Lock()
	p.candidates = orderedmap.New[string, *Candidate]()
	p.mu.Unlock()

	progress("Waiting for adapter")
	r.PowerOn()
	if err := p.awaitPoweredOn(ctx, r); err != nil {
		return nil, err
	}

	p.logger.WithField("duration", opts.Duration).Info("Starting die scan...")
	progress("Scanning")
	r.Scan([]string{die.AdvertisedServiceUUID}, opts.Duration)

	scanErr := p.collect(ctx, r, opts)

	p.logger.WithField("device_count", len(p.Candidates())).Info("Die scan completed")
	progress("Processing results")
	return p.Candidates(), scanErr
}

func (p *Picker) awaitPoweredOn(ctx context.Context, r radio.Radio) error {
	for {
		select {
		case ev := <-r.Events():
			st, ok := ev.(radio.AdapterStateChanged)
			if !ok {
				continue
			}
			switch {
			case st.State == radio.StatePoweredOn:
				return nil
			case !st.State.Usable():
				return device.NewError(device.PeripheralNotSupported, nil, "bluetooth adapter is %s", st.State)
			default:
				p.logger.WithField("state", st.State.String()).Warn("Waiting for bluetooth adapter to power on")
			}
		case <-ctx.Done():
			return device.Passthrough(ctx.Err())
		}
	}
}

func (p *Picker) collect(ctx context.Context, r radio.Radio, opts *ScanOptions) error {
	for {
		select {
		case ev := <-r.Events():
			switch ev := ev.(type) {
			case radio.PeripheralDiscovered:
				p.handleDiscovery(ev, opts)
			case radio.ScanStopped:
				if ev.Err != nil {
					return fmt.Errorf("scan failed: %w", ev.Err)
				}
				return nil
			}
		case <-ctx.Done():
			r.StopScan()
			return nil
		}
	}
}

// handleDiscovery updates an existing or adds a new candidate
func (p *Picker) handleDiscovery(ev radio.PeripheralDiscovered, opts *ScanOptions) {
	key := strings.ToUpper(ev.Address)

	p.mu.Lock()
	c, existing := p.candidates.Get(key)
	if !existing {
		if !shouldInclude(key, opts) {
			p.mu.Unlock()
			return
		}
		c = &Candidate{Handle: die.NewHandle(HandleID(ev.Address), ev.Address)}
		p.candidates.Set(key, c)
	}
	if ev.Name != "" {
		c.Name = ev.Name
	}
	c.RSSI = ev.RSSI
	c.Sightings++
	c.LastSeen = p.now()
	snapshot := *c
	p.mu.Unlock()

	event := CandidateEvent{Candidate: snapshot}
	if existing {
		event.Type = EventUpdated
	} else {
		p.logger.WithFields(logrus.Fields{
			"device":  snapshot.Name,
			"address": ev.Address,
			"rssi":    snapshot.RSSI,
		}).Info("Discovered new die")
		event.Type = EventNew
	}
	p.events.Send(event)
}

// shouldInclude applies the allow and block lists
func shouldInclude(address string, opts *ScanOptions) bool {
	for _, blocked := range opts.BlockList {
		if strings.EqualFold(address, blocked) {
			return false
		}
	}
	if len(opts.AllowList) == 0 {
		return true
	}
	for _, a := range opts.AllowList {
		if strings.EqualFold(address, a) {
			return true
		}
	}
	return false
}

// Candidates returns a snapshot in discovery order
func (p *Picker) Candidates() []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Candidate, 0, p.candidates.Len())
	for pair := p.candidates.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}
