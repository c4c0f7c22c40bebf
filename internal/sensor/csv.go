package sensor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/logic"
)

// Decoder reads samples from CSV recordings.
//
// Accepted layouts:
//   - a header naming the axes (x,y,z or accel_x,accel_y,accel_z, any order,
//     extra columns ignored)
//   - no header and three columns: x,y,z
//   - no header and four columns: timestamp,x,y,z
//
// Lines starting with # are comments.
type Decoder struct {
	r    *csv.Reader
	cols [3]int
	init bool
	line int
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &Decoder{r: cr}
}

// Next returns the next sample, or io.EOF at the end of input.
func (d *Decoder) Next() (logic.Sample, error) {
	for {
		rec, err := d.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return logic.Sample{}, io.EOF
			}
			return logic.Sample{}, fmt.Errorf("read csv: %w", err)
		}
		d.line++

		if !d.init {
			d.init = true
			if cols, ok := headerColumns(rec); ok {
				d.cols = cols
				continue
			}
			switch len(rec) {
			case 3:
				d.cols = [3]int{0, 1, 2}
			case 4:
				d.cols = [3]int{1, 2, 3}
			default:
				return logic.Sample{}, fmt.Errorf("csv line %d: want 3 or 4 columns without a header, got %d", d.line, len(rec))
			}
		}

		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return d.parse(rec)
	}
}

func (d *Decoder) parse(rec []string) (logic.Sample, error) {
	var v [3]float64
	for i, c := range d.cols {
		if c >= len(rec) {
			return logic.Sample{}, fmt.Errorf("csv line %d: missing column %d", d.line, c+1)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
		if err != nil {
			return logic.Sample{}, fmt.Errorf("csv line %d: parse %q: %w", d.line, rec[c], err)
		}
		v[i] = f
	}
	return logic.Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}

// headerColumns maps axis names to column indexes.
func headerColumns(rec []string) ([3]int, bool) {
	cols := [3]int{-1, -1, -1}
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "x", "accel_x", "ax":
			cols[0] = i
		case "y", "accel_y", "ay":
			cols[1] = i
		case "z", "accel_z", "az":
			cols[2] = i
		}
	}
	return cols, cols[0] >= 0 && cols[1] >= 0 && cols[2] >= 0
}

// ReadCSV decodes every sample in r.
func ReadCSV(r io.Reader) ([]logic.Sample, error) {
	d := NewDecoder(r)
	var out []logic.Sample
	for {
		s, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

// CSVSource replays a recording, one sample per interval.
type CSVSource struct {
	ch     chan logic.Sample
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	closer io.Closer
	logger *zap.Logger

	mu  sync.Mutex
	err error
}

// NewCSVSource starts replaying r. An interval of 0 delivers samples as fast
// as the consumer takes them. If r is an io.Closer it is closed when the
// replay ends.
func NewCSVSource(r io.Reader, interval time.Duration, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CSVSource{
		ch:     make(chan logic.Sample),
		done:   make(chan struct{}),
		logger: logger,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}

	s.wg.Add(1)
	go s.run(NewDecoder(r), interval)
	return s
}

func (s *CSVSource) run(d *Decoder, interval time.Duration) {
	defer s.wg.Done()
	defer close(s.ch)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	n := 0
	for {
		sample, err := d.Next()
		if errors.Is(err, io.EOF) {
			s.logger.Info("csv replay finished", zap.Int("samples", n))
			return
		}
		if err != nil {
			s.setErr(err)
			s.logger.Error("csv replay stopped", zap.Int("samples", n), zap.Error(err))
			return
		}

		if tick != nil {
			select {
			case <-tick:
			case <-s.done:
				return
			}
		}

		select {
		case s.ch <- sample:
			n++
		case <-s.done:
			return
		}
	}
}

func (s *CSVSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the error that stopped the replay, if any.
func (s *CSVSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Samples returns the delivery channel.
func (s *CSVSource) Samples() <-chan logic.Sample {
	return s.ch
}

// Close stops the replay and closes the underlying reader.
func (s *CSVSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
