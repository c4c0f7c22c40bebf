package store

import "sync"

// Memory is an in-process baseline store.
type Memory struct {
	mu    sync.Mutex
	value float64

	// LoadError, if set, will be returned by LoadBaseline.
	LoadError error

	// SaveError, if set, will be returned by SaveBaseline.
	SaveError error

	// Saves records every value passed to SaveBaseline.
	Saves []float64
}

// NewMemory creates a store holding the given baseline.
func NewMemory(initial float64) *Memory {
	return &Memory{value: initial}
}

// LoadBaseline returns the held baseline.
func (m *Memory) LoadBaseline() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return 0, m.LoadError
	}
	return m.value, nil
}

// SaveBaseline replaces the held baseline.
func (m *Memory) SaveBaseline(steps float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.value = steps
	m.Saves = append(m.Saves, steps)
	return nil
}

// Value returns the held baseline.
func (m *Memory) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
