package logic

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBaseline is returned by Load when the stored baseline is not a
// finite, non-negative number.
var ErrInvalidBaseline = errors.New("invalid baseline")

// Accumulator keeps the running step total and the persisted baseline.
type Accumulator struct {
	store    BaselineStore
	running  float64
	baseline float64
}

// NewAccumulator creates an accumulator backed by the given store.
// A nil store disables persistence.
func NewAccumulator(store BaselineStore) *Accumulator {
	return &Accumulator{store: store}
}

// Load initializes both the running total and the baseline from the store.
// Any failure falls back to 0; the error is returned for logging only.
func (a *Accumulator) Load() error {
	a.running = 0
	a.baseline = 0
	if a.store == nil {
		return nil
	}

	v, err := a.store.LoadBaseline()
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidBaseline, v)
	}

	a.baseline = v
	a.running = v
	return nil
}

// OnEstimate adds a window's step estimate to the running total.
func (a *Accumulator) OnEstimate(delta int) {
	if delta <= 0 {
		return
	}
	a.running += float64(delta)
}

// Reset captures the running total as the new baseline and persists it.
// The running total is not zeroed.
func (a *Accumulator) Reset() (float64, error) {
	a.baseline = a.running
	if a.store == nil {
		return a.baseline, nil
	}
	if err := a.store.SaveBaseline(a.baseline); err != nil {
		return a.baseline, fmt.Errorf("save baseline: %w", err)
	}
	return a.baseline, nil
}

// RunningTotal returns the accumulated step count.
func (a *Accumulator) RunningTotal() float64 {
	return a.running
}

// Baseline returns the step count captured at the last reset (or load).
func (a *Accumulator) Baseline() float64 {
	return a.baseline
}
