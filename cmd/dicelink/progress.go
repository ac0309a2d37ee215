package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/dicelink/internal/die"
	"github.com/srg/dicelink/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays progress messages with elapsed or remaining time.
//
// Usage:
//
//	p := NewProgressPrinter(out, "Connecting", "idle", "ready", "failed")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Start may be called at most once; Stop is
// safe to call any number of times.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value        // string
	stopPhases map[string]struct{} // phases that end the display
	countUp    bool
	duration   time.Duration // countdown length

	startTime time.Time
	started   atomic.Bool
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
	writeMu   sync.Mutex
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(out io.Writer, prefix, phase string, stopPhases ...string) *ProgressPrinter {
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: phaseSet(stopPhases),
		countUp:    true,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from duration.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	p := NewProgressPrinter(out, prefix, phase, stopPhases...)
	p.countUp = false
	p.duration = duration
	return p
}

func phaseSet(phases []string) map[string]struct{} {
	set := make(map[string]struct{}, len(phases))
	for _, p := range phases {
		set[p] = struct{}{}
	}
	return set
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	p.print(p.phase.Load().(string), 0)

	ticker := time.NewTicker(progressUpdateInterval)
	groutine.Go(context.Background(), "progress-printer", func(context.Context) {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				p.print(phase, p.seconds())
			}
		}
	})
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.countUp {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second, e.g. 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

// print displays a progress line with optional elapsed/remaining seconds
func (p *ProgressPrinter) print(phase string, seconds int) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a progress callback that updates the phase.
// A stop phase stops the printer. Safe to call from multiple goroutines.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// PhaseCallback adapts Callback to die connect phases.
func (p *ProgressPrinter) PhaseCallback() die.ProgressCallback {
	cb := p.Callback()
	return func(phase die.Phase) {
		cb(phase.String())
	}
}

// Stop stops the progress display and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.done
		}
		p.writeMu.Lock()
		fmt.Fprint(p.out, clearLineSequence)
		p.writeMu.Unlock()
	})
}
