//go:build linux

package button

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

// Config selects the line and timing of a real button.
type Config struct {
	Chip      string
	Pin       int
	Debounce  time.Duration
	LongPress time.Duration
}

// RealButton watches a GPIO line through the character device.
// The line is pulled up; pressing the button pulls it low.
type RealButton struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	logger *zap.Logger

	mu      sync.Mutex
	tracker edgeTracker
	ch      chan Press
	closed  bool
}

// NewRealButton requests the line with edge detection on both edges.
func NewRealButton(cfg Config, logger *zap.Logger) (*RealButton, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealButton{
		chip:    chip,
		logger:  logger.With(zap.Int("pin", cfg.Pin)),
		tracker: edgeTracker{longPress: cfg.LongPress},
		ch:      make(chan Press, 4),
	}

	line, err := chip.RequestLine(cfg.Pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(cfg.Debounce),
		gpiocdev.WithEventHandler(b.handle))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button pin %d: %w", cfg.Pin, err)
	}
	b.line = line
	return b, nil
}

func (b *RealButton) handle(evt gpiocdev.LineEvent) {
	// Active low: a falling edge is a press.
	pressed := evt.Type == gpiocdev.LineEventFallingEdge

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	p, ok := b.tracker.edge(pressed, evt.Timestamp)
	if !ok {
		return
	}
	select {
	case b.ch <- p:
	default:
		b.logger.Warn("button press dropped", zap.Duration("held", p.Held))
	}
}

// Presses returns the delivery channel.
func (b *RealButton) Presses() <-chan Press {
	return b.ch
}

// Close releases the line and chip. The line is returned to a plain
// pulled-up input first.
func (b *RealButton) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	var errs []error
	if b.line != nil {
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
