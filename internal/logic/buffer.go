package logic

// SampleBuffer accumulates samples until a full window is available.
// Not safe for concurrent use; the caller must synchronize.
type SampleBuffer struct {
	size    int
	samples []Sample
}

// NewSampleBuffer creates a buffer that emits windows of the given size.
// A size <= 0 falls back to WindowSize.
func NewSampleBuffer(size int) *SampleBuffer {
	if size <= 0 {
		size = WindowSize
	}
	return &SampleBuffer{
		size:    size,
		samples: make([]Sample, 0, size),
	}
}

// Append adds a sample. When the buffer reaches the window size it returns
// the full window and starts over empty.
func (b *SampleBuffer) Append(s Sample) (Window, bool) {
	b.samples = append(b.samples, s)
	if len(b.samples) < b.size {
		return nil, false
	}

	// Hand off the backing array; the next window gets a fresh one.
	w := Window(b.samples)
	b.samples = make([]Sample, 0, b.size)
	return w, true
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	return len(b.samples)
}

// Size returns the configured window size.
func (b *SampleBuffer) Size() int {
	return b.size
}

// Clear discards any partially filled window.
func (b *SampleBuffer) Clear() {
	b.samples = b.samples[:0]
}
