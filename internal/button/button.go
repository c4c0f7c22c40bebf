// Package button turns a GPIO push button into step-reset requests.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package button

import "time"

// Defaults for a button wired between the pin and ground.
const (
	DefaultChip      = "gpiochip0"
	DefaultDebounce  = 20 * time.Millisecond
	DefaultLongPress = time.Second
)

// Press is one completed press of the button.
type Press struct {
	Held time.Duration
	Long bool
}

// Button delivers completed presses.
type Button interface {
	// Presses returns the delivery channel. It is closed by Close.
	Presses() <-chan Press

	// Close releases GPIO resources.
	Close() error
}

// Classify reports whether a press held for held counts as a long press.
// A non-positive threshold selects DefaultLongPress.
func Classify(held, longPress time.Duration) Press {
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	return Press{Held: held, Long: held >= longPress}
}

// edgeTracker pairs press and release edges. Timestamps are monotonic
// offsets, as reported by the kernel for line events.
type edgeTracker struct {
	longPress time.Duration
	down      bool
	since     time.Duration
}

// edge records a level change and returns the completed press, if any.
// Repeated edges in the same direction are ignored.
func (t *edgeTracker) edge(pressed bool, at time.Duration) (Press, bool) {
	if pressed {
		if !t.down {
			t.down = true
			t.since = at
		}
		return Press{}, false
	}
	if !t.down {
		return Press{}, false
	}
	t.down = false
	held := at - t.since
	if held < 0 {
		held = 0
	}
	return Classify(held, t.longPress), true
}
