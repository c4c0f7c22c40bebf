package button

import (
	"sync"
	"time"
)

// FakeButton is a test double driven by scripted edges.
type FakeButton struct {
	ch      chan Press
	tracker edgeTracker

	mu     sync.Mutex
	closed bool
}

// NewFakeButton creates a FakeButton with the given long-press threshold.
func NewFakeButton(longPress time.Duration) *FakeButton {
	return &FakeButton{
		ch:      make(chan Press, 8),
		tracker: edgeTracker{longPress: longPress},
	}
}

// Edge feeds a level change at the given monotonic offset.
func (f *FakeButton) Edge(pressed bool, at time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if p, ok := f.tracker.edge(pressed, at); ok {
		f.ch <- p
	}
}

// Hold simulates pressing and releasing the button after held.
func (f *FakeButton) Hold(held time.Duration) {
	f.Edge(true, 0)
	f.Edge(false, held)
}

// Presses returns the delivery channel.
func (f *FakeButton) Presses() <-chan Press {
	return f.ch
}

// Close closes the delivery channel.
func (f *FakeButton) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}
