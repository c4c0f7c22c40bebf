package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/logic"
)

// DefaultSampleQueue holds about 20 seconds of samples at 50 Hz.
const DefaultSampleQueue = 1024

// samplePoint accepts both x/y/z and accel_x/accel_y/accel_z field names.
type samplePoint struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Z      *float64 `json:"z"`
	AccelX *float64 `json:"accel_x"`
	AccelY *float64 `json:"accel_y"`
	AccelZ *float64 `json:"accel_z"`
}

func (p samplePoint) sample() (logic.Sample, error) {
	pick := func(a, b *float64) (float64, bool) {
		if a != nil {
			return *a, true
		}
		if b != nil {
			return *b, true
		}
		return 0, false
	}
	x, okX := pick(p.X, p.AccelX)
	y, okY := pick(p.Y, p.AccelY)
	z, okZ := pick(p.Z, p.AccelZ)
	if !okX || !okY || !okZ {
		return logic.Sample{}, errors.New("sample needs x, y and z")
	}
	return logic.Sample{X: x, Y: y, Z: z}, nil
}

// sensorLoggerBatch is the HTTP/MQTT push format of the Sensor Logger app.
type sensorLoggerBatch struct {
	Payload []struct {
		Name   string      `json:"name"`
		Values samplePoint `json:"values"`
	} `json:"payload"`
}

// ParseSamples decodes a samples message. Accepted forms:
//   - {"x":..,"y":..,"z":..} (or accel_x/accel_y/accel_z)
//   - an array of those
//   - {"payload":[{"name":"accelerometer","values":{...}}, ...]}; other sensors are skipped
func ParseSamples(payload []byte) ([]logic.Sample, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}

	var points []samplePoint
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &points); err != nil {
			return nil, fmt.Errorf("decode samples: %w", err)
		}
	case '{':
		if bytes.Contains(trimmed, []byte(`"payload"`)) {
			var batch sensorLoggerBatch
			if err := json.Unmarshal(trimmed, &batch); err != nil {
				return nil, fmt.Errorf("decode sensor batch: %w", err)
			}
			for _, entry := range batch.Payload {
				if entry.Name == "accelerometer" {
					points = append(points, entry.Values)
				}
			}
			break
		}
		var p samplePoint
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("decode sample: %w", err)
		}
		points = []samplePoint{p}
	default:
		return nil, fmt.Errorf("decode samples: unexpected %q", trimmed[0])
	}

	out := make([]logic.Sample, 0, len(points))
	for i, p := range points {
		s, err := p.sample()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// SampleSubscriber turns a samples topic into a sensor source.
// Samples are delivered in arrival order and never dropped: when the queue
// is full the message handler blocks until the consumer catches up or the
// subscriber is closed.
type SampleSubscriber struct {
	ch     chan logic.Sample
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// NewSampleSubscriber subscribes to topic. queue <= 0 selects DefaultSampleQueue.
func NewSampleSubscriber(sub Subscriber, topic string, queue int, logger *zap.Logger) (*SampleSubscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue <= 0 {
		queue = DefaultSampleQueue
	}
	s := &SampleSubscriber{
		ch:     make(chan logic.Sample, queue),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("topic", topic)),
	}
	if err := sub.Subscribe(topic, s.handle); err != nil {
		return nil, fmt.Errorf("subscribe samples: %w", err)
	}
	return s, nil
}

func (s *SampleSubscriber) handle(_ string, payload []byte) {
	samples, err := ParseSamples(payload)
	if err != nil {
		s.logger.Warn("ignoring malformed samples message", zap.Error(err))
		return
	}

	// mu is held for the whole message so its samples stay contiguous.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i, sample := range samples {
		select {
		case s.ch <- sample:
		case <-s.done:
			s.logger.Debug("subscriber closed mid-message", zap.Int("undelivered", len(samples)-i))
			return
		}
	}
}

// Samples returns the delivery channel.
func (s *SampleSubscriber) Samples() <-chan logic.Sample {
	return s.ch
}

// Close stops delivery and closes the channel. A handler blocked on a full
// queue returns, and later messages are ignored.
func (s *SampleSubscriber) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

// ParseControl decodes a control message: a bare command name
// ("RESET") or {"command":"RESET"}. Names are case-insensitive.
func ParseControl(payload []byte) (logic.Command, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var msg struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return "", fmt.Errorf("decode control: %w", err)
		}
		text = msg.Command
	}
	cmd, ok := logic.ParseCommand(strings.ToUpper(strings.TrimSpace(text)))
	if !ok {
		return "", fmt.Errorf("unknown command %q", text)
	}
	return cmd, nil
}

// ControlSubscriber forwards commands from the control topic.
type ControlSubscriber struct {
	ch     chan logic.Command
	logger *zap.Logger
}

// NewControlSubscriber subscribes to topic.
func NewControlSubscriber(sub Subscriber, topic string, logger *zap.Logger) (*ControlSubscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ControlSubscriber{
		ch:     make(chan logic.Command, 8),
		logger: logger.With(zap.String("topic", topic)),
	}
	if err := sub.Subscribe(topic, c.handle); err != nil {
		return nil, fmt.Errorf("subscribe control: %w", err)
	}
	return c, nil
}

func (c *ControlSubscriber) handle(_ string, payload []byte) {
	cmd, err := ParseControl(payload)
	if err != nil {
		c.logger.Warn("ignoring control message", zap.Error(err))
		return
	}
	select {
	case c.ch <- cmd:
		c.logger.Info("control command received", zap.String("command", string(cmd)))
	default:
		c.logger.Warn("control queue full, dropping", zap.String("command", string(cmd)))
	}
}

// Commands returns the command channel.
func (c *ControlSubscriber) Commands() <-chan logic.Command {
	return c.ch
}
