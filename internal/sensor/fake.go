package sensor

import (
	"sync"

	"github.com/sweeney/step-sensor/internal/logic"
)

// FakeSource is a test double whose samples are pushed by the test.
// The channel is unbuffered, so Push returns once the consumer has
// received the sample.
type FakeSource struct {
	ch   chan logic.Sample
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// NewFakeSource creates a FakeSource with an unbuffered channel.
func NewFakeSource() *FakeSource {
	return &FakeSource{ch: make(chan logic.Sample)}
}

// NewScriptedSource creates a FakeSource preloaded with samples. The
// channel is closed after the last one.
func NewScriptedSource(samples []logic.Sample) *FakeSource {
	f := &FakeSource{ch: make(chan logic.Sample, len(samples))}
	for _, s := range samples {
		f.ch <- s
	}
	f.once.Do(func() { close(f.ch) })
	return f
}

// Push delivers one sample, blocking until it is received.
func (f *FakeSource) Push(s logic.Sample) {
	f.ch <- s
}

// PushAll delivers samples in order.
func (f *FakeSource) PushAll(samples []logic.Sample) {
	for _, s := range samples {
		f.ch <- s
	}
}

// End closes the delivery channel, as a real source does when exhausted.
func (f *FakeSource) End() {
	f.once.Do(func() { close(f.ch) })
}

// Samples returns the delivery channel.
func (f *FakeSource) Samples() <-chan logic.Sample {
	return f.ch
}

// Close ends delivery and marks the source as closed.
func (f *FakeSource) Close() error {
	f.End()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
