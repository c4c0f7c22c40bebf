// Package sensor provides accelerometer sample sources with hardware abstraction.
// The IIO implementation polls the Linux industrial I/O sysfs interface.
// The CSV implementation replays recordings; the fake allows testing without hardware.
package sensor

import (
	"errors"

	"github.com/sweeney/step-sensor/internal/logic"
)

// Source delivers acceleration samples in arrival order.
type Source interface {
	// Samples returns the delivery channel. It is closed when the source
	// ends or is closed.
	Samples() <-chan logic.Sample

	// Close stops delivery and releases resources.
	Close() error
}

// ErrClosed is returned when using a source after Close.
var ErrClosed = errors.New("sensor: source closed")
