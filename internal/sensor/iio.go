package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/logic"
)

// DefaultIIORoot is where the kernel exposes IIO devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// IIOSource polls a Linux IIO accelerometer through sysfs.
type IIOSource struct {
	dir    string
	scale  [3]float64
	ch     chan logic.Sample
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

// NewIIOSource opens the device directory (for example
// /sys/bus/iio/devices/iio:device0) and starts polling at the given interval.
func NewIIOSource(dir string, interval time.Duration, logger *zap.Logger) (*IIOSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("iio: invalid poll interval %v", interval)
	}

	s := &IIOSource{
		dir:    dir,
		ch:     make(chan logic.Sample),
		done:   make(chan struct{}),
		logger: logger,
	}

	for i, axis := range []string{"x", "y", "z"} {
		scale, err := s.readScale(axis)
		if err != nil {
			return nil, err
		}
		s.scale[i] = scale
	}

	// Fail fast if the raw channels are missing.
	if _, err := s.Read(); err != nil {
		return nil, fmt.Errorf("iio: probe %s: %w", dir, err)
	}

	s.wg.Add(1)
	go s.run(interval)
	return s, nil
}

// FindIIODevice returns the first device under root exposing accelerometer
// channels, or the named device if name is not empty.
func FindIIODevice(root, name string) (string, error) {
	if name != "" {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "in_accel_x_raw")); err != nil {
			return "", fmt.Errorf("iio: %s has no accelerometer: %w", name, err)
		}
		return dir, nil
	}

	matches, err := filepath.Glob(filepath.Join(root, "*", "in_accel_x_raw"))
	if err != nil {
		return "", fmt.Errorf("iio: scan %s: %w", root, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("iio: no accelerometer under %s", root)
	}
	return filepath.Dir(matches[0]), nil
}

// readScale prefers the per-axis scale, then the shared one, then 1.
func (s *IIOSource) readScale(axis string) (float64, error) {
	for _, name := range []string{"in_accel_" + axis + "_scale", "in_accel_scale"} {
		v, err := readFloat(filepath.Join(s.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("iio: %w", err)
		}
		return v, nil
	}
	return 1, nil
}

// Read returns one scaled sample in m/s².
func (s *IIOSource) Read() (logic.Sample, error) {
	select {
	case <-s.done:
		return logic.Sample{}, ErrClosed
	default:
	}

	var v [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(s.dir, "in_accel_"+axis+"_raw"))
		if err != nil {
			return logic.Sample{}, err
		}
		v[i] = raw * s.scale[i]
	}
	return logic.Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (s *IIOSource) run(interval time.Duration) {
	defer s.wg.Done()
	defer close(s.ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		sample, err := s.Read()
		if err != nil {
			if !failing {
				s.logger.Warn("iio read failed", zap.String("device", s.dir), zap.Error(err))
				failing = true
			}
			continue
		}
		if failing {
			s.logger.Info("iio read recovered", zap.String("device", s.dir))
			failing = false
		}

		select {
		case s.ch <- sample:
		case <-s.done:
			return
		}
	}
}

// Samples returns the delivery channel.
func (s *IIOSource) Samples() <-chan logic.Sample {
	return s.ch
}

// Close stops polling.
func (s *IIOSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
