package editor

import (
	"time"

	"github.com/haivivi/chronicle/pkg/document"
)

// DefaultCadence is the interval between two typed runes.
const DefaultCadence = 12 * time.Millisecond

// Playback is a typewriter queue. Streamed text is pushed as it arrives and
// drained into the document one rune per tick, so the typing speed does not
// depend on network timing.
//
// Playback does not run its own goroutine. The owner selects on C and calls
// Tick for every value received. Playback is not safe for concurrent use.
type Playback struct {
	doc     document.Surface
	cadence time.Duration

	pending  []rune
	finished bool
	drained  bool
	ticker   *time.Ticker
}

// NewPlayback returns a stopped Playback writing into doc. A non-positive
// cadence selects DefaultCadence.
func NewPlayback(doc document.Surface, cadence time.Duration) *Playback {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Playback{doc: doc, cadence: cadence}
}

// Push queues the runes of chunk. Pushing after Finish is ignored.
func (p *Playback) Push(chunk string) {
	if p.finished {
		return
	}
	p.pending = append(p.pending, []rune(chunk)...)
}

// Finish marks the producer done. The queue drains what is pending and
// then stops.
func (p *Playback) Finish() {
	p.finished = true
}

// Finished reports whether Finish was called since the last Reset.
func (p *Playback) Finished() bool {
	return p.finished
}

// Start starts the ticker. Starting a running queue does nothing.
func (p *Playback) Start() {
	if p.ticker != nil {
		return
	}
	p.ticker = time.NewTicker(p.cadence)
}

// Stop stops the ticker. Pending runes are kept.
func (p *Playback) Stop() {
	if p.ticker == nil {
		return
	}
	p.ticker.Stop()
	p.ticker = nil
}

// Cancel drops pending runes and stops the ticker. Text already typed stays
// in the document.
func (p *Playback) Cancel() {
	p.Stop()
	p.pending = nil
	p.finished = true
}

// Reset prepares the queue for a new generation.
func (p *Playback) Reset() {
	p.Stop()
	p.pending = nil
	p.finished = false
	p.drained = false
}

// C returns the tick channel, or nil while stopped.
func (p *Playback) C() <-chan time.Time {
	if p.ticker == nil {
		return nil
	}
	return p.ticker.C
}

// Tick advances the queue by one step. It types one pending rune and
// reports inserted, or, when nothing is pending and the producer has
// finished, stops the ticker and reports drained. drained is reported once
// per generation. With nothing pending and the producer still running the
// tick does nothing.
func (p *Playback) Tick() (inserted, drained bool) {
	if len(p.pending) > 0 {
		r := p.pending[0]
		p.pending = p.pending[1:]
		p.doc.InsertAtCursor(r)
		return true, false
	}
	if !p.finished || p.drained {
		return false, false
	}
	p.Stop()
	p.drained = true
	return false, true
}

// Len returns the number of pending runes.
func (p *Playback) Len() int {
	return len(p.pending)
}

// Running reports whether the ticker is active.
func (p *Playback) Running() bool {
	return p.ticker != nil
}
