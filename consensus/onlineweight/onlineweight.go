// Package onlineweight maintains an EMA of recently active representative
// voting weight, so quorum math survives a momentary dip in observed
// online weight (bad TCP window, partitioned minority).
package onlineweight

import "sync"

// DefaultAlphaBps is the EMA smoothing factor in basis points applied to
// each new sample (20% weight to the latest sample).
const DefaultAlphaBps = 2000

// Sampler tracks an exponential moving average of online weight.
type Sampler struct {
	mu      sync.Mutex
	alpha   uint64 // basis points given to each new sample
	ema     uint64
	hasEMA  bool
	floor   uint64
}

// New constructs a Sampler with the given floor (minimum effective weight)
// and default smoothing.
func New(floor uint64) *Sampler {
	return &Sampler{alpha: DefaultAlphaBps, floor: floor}
}

// NewWithAlpha constructs a Sampler with an explicit smoothing factor, in
// basis points out of 10000.
func NewWithAlpha(floor, alphaBps uint64) *Sampler {
	return &Sampler{alpha: alphaBps, floor: floor}
}

// Restore seeds the sampler's EMA from a persisted value (see
// SPEC_FULL.md's note on surviving restarts), without treating it as a
// fresh sample.
func (s *Sampler) Restore(ema uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ema = ema
	s.hasEMA = true
}

// Sample records a new observation of current online weight and updates
// the EMA.
func (s *Sampler) Sample(current uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasEMA {
		s.ema = current
		s.hasEMA = true
		return
	}

	// new = old*(1-alpha) + current*alpha, in basis points
	s.ema = (s.ema*(10000-s.alpha) + current*s.alpha) / 10000
}

// EMA returns the current smoothed estimate.
func (s *Sampler) EMA() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ema
}

// Effective returns max(current, ema, floor): the effective online weight
// used for quorum computations.
func (s *Sampler) Effective(current uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	eff := current
	if s.ema > eff {
		eff = s.ema
	}
	if s.floor > eff {
		eff = s.floor
	}
	return eff
}
