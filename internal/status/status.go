// Package status provides a thread-safe status tracker for the step-sensor daemon.
// It is written by runLoop and read by HTTP handlers and system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Source       string
	SampleRateHz float64
	WindowSize   int
	HeartbeatMs  int64
	Broker       string
	TopicPrefix  string
	HTTPPort     string
	WSBroker     string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Displayed     int
	RunningTotal  float64
	Baseline      float64
	Phase         logic.Phase
	Buffered      int
	LastWindow    *logic.WindowResult
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
// It implements logic.Display.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Phase:     logic.PhaseInactive,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// ShowSteps records the step count currently on display.
func (t *Tracker) ShowSteps(steps int) {
	t.mu.Lock()
	t.snap.Displayed = steps
	t.mu.Unlock()
}

// Update copies the pipeline state. Called from runLoop after every change.
func (t *Tracker) Update(p *logic.Pipeline) {
	phase := p.Phase()
	buffered := p.Buffered()
	running := p.RunningTotal()
	baseline := p.Baseline()
	counts := p.CountsSnapshot()
	var last *logic.WindowResult
	if w := p.LastWindow(); w != nil {
		c := *w
		last = &c
	}

	t.mu.Lock()
	t.snap.Phase = phase
	t.snap.Buffered = buffered
	t.snap.RunningTotal = running
	t.snap.Baseline = baseline
	t.snap.Counts = counts
	t.snap.LastWindow = last
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastWindow != nil {
		c := *s.LastWindow
		s.LastWindow = &c
	}
	s.Now = t.now()
	return s
}
