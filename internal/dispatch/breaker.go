package dispatch

import (
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker is a three-state circuit breaker driven by the error rate over a
// sliding window of recent call outcomes. When open it rejects immediately
// for a cooldown, then admits a single tagged probe; only that probe's
// outcome flips the breaker fully closed or back open. Calls dispatched
// before the breaker opened may still complete during half-open; their
// outcomes land in the window as ordinary samples.
type Breaker struct {
	mu sync.Mutex

	state      BreakerState
	outcomes   []bool // ring buffer, true = error
	head       int
	filled     int
	windowSize int
	threshold  float64
	minSamples int
	cooldown   time.Duration
	openedAt   time.Time
	probing    bool

	now func() time.Time
}

func NewBreaker(windowSize int, errorThreshold float64, minSamples int, cooldown time.Duration) *Breaker {
	if windowSize <= 0 {
		windowSize = 100
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	return &Breaker{
		state:      BreakerClosed,
		outcomes:   make([]bool, windowSize),
		windowSize: windowSize,
		threshold:  errorThreshold,
		minSamples: minSamples,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed and whether the admitted call is
// the half-open probe. In the open state it transitions to half-open once the
// cooldown has elapsed and admits exactly one probe.
func (b *Breaker) Allow() (admit bool, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return true, false
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true, true
		}
		return false, false
	case BreakerHalfOpen:
		if b.probing {
			return false, false // probe already in flight
		}
		b.probing = true
		return true, true
	}
	return false, false
}

// Record feeds one call outcome back into the breaker. Only the tagged probe
// drives the half-open transition; every other outcome is an ordinary window
// sample, even when it arrives while the breaker is half-open.
func (b *Breaker) Record(isError, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		if b.state != BreakerHalfOpen {
			return // probe outlived the state it was admitted in
		}
		b.probing = false
		if isError {
			b.state = BreakerOpen
			b.openedAt = b.now()
		} else {
			b.state = BreakerClosed
			b.reset()
		}
		return
	}

	b.outcomes[b.head] = isError
	b.head = (b.head + 1) % b.windowSize
	if b.filled < b.windowSize {
		b.filled++
	}

	if b.state == BreakerClosed && b.filled >= b.minSamples && b.errorRate() > b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// ProbeAborted releases the probe slot when the admitted probe never ran
// (caller canceled before dispatch). Without this the breaker would stay
// half-open rejecting everything.
func (b *Breaker) ProbeAborted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.probing = false
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) ErrorRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorRate()
}

func (b *Breaker) errorRate() float64 {
	if b.filled == 0 {
		return 0
	}
	errs := 0
	for i := 0; i < b.filled; i++ {
		if b.outcomes[i] {
			errs++
		}
	}
	return float64(errs) / float64(b.filled)
}

func (b *Breaker) reset() {
	b.head = 0
	b.filled = 0
	b.probing = false
}
