//go:build !linux

package button

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Config selects the line and timing of a real button.
type Config struct {
	Chip      string
	Pin       int
	Debounce  time.Duration
	LongPress time.Duration
}

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(Config, *zap.Logger) (*RealButton, error) {
	return nil, errors.New("button: not supported on this platform (requires Linux)")
}

// Presses returns nil on non-Linux platforms.
func (b *RealButton) Presses() <-chan Press {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (b *RealButton) Close() error {
	return nil
}
