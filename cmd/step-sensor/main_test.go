package main

import (
	"bytes"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/button"
	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/mqtt"
	"github.com/sweeney/step-sensor/internal/sensor"
	"github.com/sweeney/step-sensor/internal/status"
	"github.com/sweeney/step-sensor/internal/store"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.IP != "" {
		t.Errorf("IP: got %q, want empty", info.IP)
	}
}

func TestResolveWSBroker(t *testing.T) {
	tests := []struct {
		ws, broker, want string
	}{
		{"=broker", "tcp://192.168.1.200:1883", "ws://192.168.1.200:9001"},
		{"=broker", "tcp://broker.local", "ws://broker.local:9001"},
		{"ws://other:8080/mqtt", "tcp://192.168.1.200:1883", "ws://other:8080/mqtt"},
		{"off", "tcp://192.168.1.200:1883", ""},
		{"", "tcp://192.168.1.200:1883", ""},
		{"=broker", "not a url", ""},
	}
	for _, tt := range tests {
		if got := resolveWSBroker(tt.ws, tt.broker, zap.NewNop()); got != tt.want {
			t.Errorf("resolveWSBroker(%q, %q) = %q, want %q", tt.ws, tt.broker, got, tt.want)
		}
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// binFreq returns the centre frequency of DFT bin k.
func binFreq(k int) float64 {
	return float64(k) * logic.SampleRateHz / logic.WindowSize
}

// walk returns n samples of gravity plus a 2 m/s² sinusoid at freqHz.
func walk(freqHz float64, n int) []logic.Sample {
	out := make([]logic.Sample, n)
	for i := range out {
		t := float64(i) / logic.SampleRateHz
		out[i] = logic.Sample{Z: 9.81 + 2*math.Sin(2*math.Pi*freqHz*t)}
	}
	return out
}

// harness runs runLoop against fakes.
type harness struct {
	source   *sensor.FakeSource
	pub      *mqtt.FakePublisher
	store    *store.Memory
	tracker  *status.Tracker
	commands chan logic.Command
	control  <-chan logic.Command
	button   *button.FakeButton
	tick     chan time.Time
	sig      chan os.Signal
	errCh    chan error
}

type harnessOptions struct {
	baseline   float64
	inactive   bool
	heartbeat  time.Duration
	step       time.Duration
	setup      func(h *harness)
	withButton bool
}

func startLoop(t *testing.T, o harnessOptions) *harness {
	t.Helper()
	if o.step == 0 {
		o.step = 20 * time.Millisecond
	}
	h := &harness{
		source:   sensor.NewFakeSource(),
		pub:      mqtt.NewFakePublisher(),
		store:    store.NewMemory(o.baseline),
		tracker:  status.NewTracker(t0, status.Config{WindowSize: logic.WindowSize}),
		commands: make(chan logic.Command),
		tick:     make(chan time.Time),
		sig:      make(chan os.Signal, 1),
		errCh:    make(chan error, 1),
	}
	if o.withButton {
		h.button = button.NewFakeButton(time.Second)
	}
	if o.setup != nil {
		o.setup(h)
	}

	lc := loopConfig{
		Pipeline:        logic.NewPipeline(h.store, h.tracker, t0),
		Samples:         h.source.Samples(),
		Commands:        h.commands,
		Control:         h.control,
		Publisher:       h.pub,
		MQTTStatus:      h.pub,
		Tracker:         h.tracker,
		Heartbeat:       o.heartbeat,
		ActivateOnStart: !o.inactive,
		Now:             fakeClock(t0, o.step),
		Tick:            h.tick,
		Sig:             h.sig,
	}
	if h.button != nil {
		lc.Presses = h.button.Presses()
	}

	go func() {
		h.errCh <- runLoop(lc)
	}()
	return h
}

// stop delivers the signal and waits for runLoop to return.
func (h *harness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
	}
}

// waitFor polls the tracker until cond holds.
func (h *harness) waitFor(t *testing.T, what string, cond func(status.Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond(h.tracker.Snapshot()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func resets(n int) func(status.Snapshot) bool {
	return func(s status.Snapshot) bool { return s.Counts.Resets == n }
}

func TestRunLoopShutdownOnly(t *testing.T) {
	h := startLoop(t, harnessOptions{})
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected 0 step events, got %d", len(h.pub.Events))
	}
	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	se := h.pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGTERM" {
		t.Errorf("got %s/%s, want SHUTDOWN/SIGTERM", se.Event, se.Reason)
	}
	if !se.Retained {
		t.Error("SHUTDOWN must be retained")
	}
	if !strings.Contains(string(se.RawPayload), `"event":"SHUTDOWN"`) {
		t.Errorf("payload missing status snapshot: %s", se.RawPayload)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := startLoop(t, harnessOptions{})
	h.stop(t, syscall.SIGINT)

	if got := h.pub.SystemEvents[0].Reason; got != "SIGINT" {
		t.Errorf("reason: got %q, want SIGINT", got)
	}
}

func TestRunLoopWindowPublishesSteps(t *testing.T) {
	h := startLoop(t, harnessOptions{baseline: 120})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 step event, got %d", len(h.pub.Events))
	}
	e := h.pub.Events[0]
	if e.Type != mqtt.EventWindow {
		t.Errorf("type: got %s, want WINDOW", e.Type)
	}
	if e.Steps != 10 || e.DominantBin != 10 {
		t.Errorf("steps/bin: got %d/%d, want 10/10", e.Steps, e.DominantBin)
	}
	if e.RunningTotal != 130 || e.Baseline != 120 {
		t.Errorf("total/baseline: got %v/%v, want 130/120", e.RunningTotal, e.Baseline)
	}

	snap := h.tracker.Snapshot()
	if snap.Displayed != 130 {
		t.Errorf("displayed: got %d, want 130", snap.Displayed)
	}
	if snap.Counts.Windows != 1 || snap.Counts.StepWindows != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
}

func TestRunLoopPartialWindow(t *testing.T) {
	h := startLoop(t, harnessOptions{baseline: 7})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize-1))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected no events before the window fills, got %d", len(h.pub.Events))
	}
	snap := h.tracker.Snapshot()
	if snap.Buffered != logic.WindowSize-1 {
		t.Errorf("buffered: got %d, want %d", snap.Buffered, logic.WindowSize-1)
	}
	if snap.Displayed != 7 {
		t.Errorf("displayed: got %d, want the baseline 7", snap.Displayed)
	}
	if snap.Phase != logic.PhaseBuffering {
		t.Errorf("phase: got %s, want BUFFERING", snap.Phase)
	}
}

func TestRunLoopOutOfBandWindow(t *testing.T) {
	h := startLoop(t, harnessOptions{})
	h.source.PushAll(walk(binFreq(30), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.Events))
	}
	if h.pub.Events[0].Steps != 0 || h.pub.Events[0].RunningTotal != 0 {
		t.Errorf("out-of-band window counted steps: %+v", h.pub.Events[0])
	}
}

func TestRunLoopInactiveIgnoresSamples(t *testing.T) {
	h := startLoop(t, harnessOptions{inactive: true})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))

	h.commands <- logic.CommandActivate
	h.source.PushAll(walk(binFreq(8), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 window after activation, got %d", len(h.pub.Events))
	}
	if got := h.pub.Events[0].Steps; got != 8 {
		t.Errorf("steps: got %d, want 8 (samples before activation must be dropped)", got)
	}
	if got := h.tracker.Snapshot().Counts.Samples; got != logic.WindowSize {
		t.Errorf("samples: got %d, want %d", got, logic.WindowSize)
	}
}

func TestRunLoopDeactivateDiscardsPartialWindow(t *testing.T) {
	h := startLoop(t, harnessOptions{})
	h.source.PushAll(walk(binFreq(10), 200))
	h.commands <- logic.CommandDeactivate
	h.commands <- logic.CommandActivate
	h.source.PushAll(walk(binFreq(12), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected exactly 1 window, got %d", len(h.pub.Events))
	}
	if got := h.pub.Events[0].Steps; got != 12 {
		t.Errorf("steps: got %d, want 12", got)
	}
	if got := h.tracker.Snapshot().Buffered; got != 0 {
		t.Errorf("buffered: got %d, want 0", got)
	}
}

func TestRunLoopResetFromHTTP(t *testing.T) {
	h := startLoop(t, harnessOptions{})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))

	h.commands <- logic.CommandReset
	h.waitFor(t, "reset", resets(1))
	if got := h.tracker.Snapshot().Displayed; got != 0 {
		t.Errorf("displayed after reset: got %d, want 0", got)
	}

	// The running total is not cleared, so the next sample shows it again.
	h.source.Push(logic.Sample{Z: 9.81})
	h.stop(t, syscall.SIGTERM)

	if got := h.tracker.Snapshot().Displayed; got != 10 {
		t.Errorf("displayed after next sample: got %d, want 10", got)
	}
	if got := h.store.Value(); got != 10 {
		t.Errorf("persisted baseline: got %v, want 10", got)
	}

	if len(h.pub.Events) != 2 {
		t.Fatalf("expected WINDOW and RESET events, got %d", len(h.pub.Events))
	}
	r := h.pub.Events[1]
	if r.Type != mqtt.EventReset || r.Baseline != 10 || r.RunningTotal != 10 {
		t.Errorf("reset event: got %+v", r)
	}
	if !strings.Contains(string(h.pub.Payloads[1]), `"displayed":0`) {
		t.Errorf("reset payload should display 0: %s", h.pub.Payloads[1])
	}
}

func TestRunLoopResetSaveError(t *testing.T) {
	h := startLoop(t, harnessOptions{
		baseline: 50,
		setup: func(h *harness) {
			h.store.SaveError = errors.New("read-only filesystem")
		},
	})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.commands <- logic.CommandReset
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 3 {
		t.Fatalf("expected WINDOW, RESET, WINDOW; got %d events", len(h.pub.Events))
	}
	if got := h.pub.Events[1].Baseline; got != 60 {
		t.Errorf("in-memory baseline: got %v, want 60", got)
	}
	if got := h.pub.Events[2].RunningTotal; got != 70 {
		t.Errorf("running total after failed save: got %v, want 70", got)
	}
	if got := h.store.Value(); got != 50 {
		t.Errorf("store should be untouched, got %v", got)
	}
}

func TestRunLoopResetBeforeActivate(t *testing.T) {
	h := startLoop(t, harnessOptions{inactive: true, baseline: 33})
	h.commands <- logic.CommandReset
	h.commands <- logic.CommandActivate
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 || h.pub.Events[0].Type != mqtt.EventReset {
		t.Fatalf("expected a RESET event, got %+v", h.pub.Events)
	}
	if e := h.pub.Events[0]; e.Baseline != 33 {
		t.Errorf("reset baseline: got %v, want 33", e.Baseline)
	}
	if got := h.store.Value(); got != 33 {
		t.Errorf("persisted baseline: got %v, want 33", got)
	}
	if got := h.tracker.Snapshot().RunningTotal; got != 33 {
		t.Errorf("running total after activate: got %v, want 33", got)
	}
}

func TestRunLoopActivateLoadError(t *testing.T) {
	h := startLoop(t, harnessOptions{
		baseline: 500,
		setup: func(h *harness) {
			h.store.LoadError = errors.New("corrupt state")
		},
	})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.Events))
	}
	if e := h.pub.Events[0]; e.RunningTotal != 10 || e.Baseline != 0 {
		t.Errorf("expected counting from zero, got total=%v baseline=%v", e.RunningTotal, e.Baseline)
	}
}

func TestRunLoopControlTopic(t *testing.T) {
	topics := mqtt.NewTopics("")
	h := startLoop(t, harnessOptions{
		setup: func(h *harness) {
			control, err := mqtt.NewControlSubscriber(h.pub, topics.Control, nil)
			if err != nil {
				t.Fatal(err)
			}
			h.control = control.Commands()
		},
	})
	h.source.PushAll(walk(binFreq(9), logic.WindowSize))

	if err := h.pub.Deliver(topics.Control, []byte(`{"command":"reset"}`)); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "reset", resets(1))

	if err := h.pub.Deliver(topics.Control, []byte("DEACTIVATE")); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "deactivate", func(s status.Snapshot) bool { return s.Phase == logic.PhaseInactive })
	h.stop(t, syscall.SIGTERM)

	if got := h.store.Value(); got != 9 {
		t.Errorf("persisted baseline: got %v, want 9", got)
	}
}

func TestRunLoopButton(t *testing.T) {
	h := startLoop(t, harnessOptions{withButton: true})
	h.source.PushAll(walk(binFreq(11), logic.WindowSize))

	h.button.Hold(200 * time.Millisecond)
	h.button.Hold(1500 * time.Millisecond)
	h.waitFor(t, "button reset", resets(1))
	h.stop(t, syscall.SIGTERM)

	var got int
	for _, e := range h.pub.Events {
		if e.Type == mqtt.EventReset {
			got++
		}
	}
	if got != 1 {
		t.Errorf("expected 1 RESET from the long press only, got %d", got)
	}
	if v := h.store.Value(); v != 11 {
		t.Errorf("persisted baseline: got %v, want 11", v)
	}
}

func TestRunLoopButtonClosed(t *testing.T) {
	h := startLoop(t, harnessOptions{withButton: true})
	h.button.Close()
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 1 {
		t.Errorf("loop should keep counting after the button goes away, got %d events", len(h.pub.Events))
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: activation t0, ticks at +5m, +10m, +15m, +20m.
	// CheckHeartbeat fires once the 15-minute interval has elapsed since t0.
	h := startLoop(t, harnessOptions{heartbeat: 15 * time.Minute, step: 5 * time.Minute})
	for i := 0; i < 4; i++ {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	var heartbeats, shutdowns int
	for _, se := range h.pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			if se.Retained {
				t.Error("HEARTBEAT should not be retained")
			}
			if !strings.Contains(string(se.RawPayload), `"event":"HEARTBEAT"`) {
				t.Errorf("heartbeat payload: %s", se.RawPayload)
			}
			if want := t0.Add(15 * time.Minute); !se.Timestamp.Equal(want) {
				t.Errorf("heartbeat timestamp: got %v, want %v", se.Timestamp, want)
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	h := startLoop(t, harnessOptions{step: time.Hour})
	for i := 0; i < 3; i++ {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.SystemEvents) != 1 {
		t.Errorf("expected only SHUTDOWN with heartbeat disabled, got %d", len(h.pub.SystemEvents))
	}
}

func TestRunLoopTickRefreshesMQTTStatus(t *testing.T) {
	h := startLoop(t, harnessOptions{
		setup: func(h *harness) { h.pub.Connected = true },
	})
	h.tick <- time.Time{}
	h.waitFor(t, "mqtt status", func(s status.Snapshot) bool { return s.MQTTConnected })
	h.stop(t, syscall.SIGTERM)
}

func TestRunLoopPublishError(t *testing.T) {
	h := startLoop(t, harnessOptions{
		setup: func(h *harness) { h.pub.PublishError = errors.New("broker unavailable") },
	})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(h.pub.Events))
	}
	if got := h.tracker.Snapshot().RunningTotal; got != 20 {
		t.Errorf("counting must continue despite publish errors, got %v", got)
	}
	if len(h.pub.SystemEvents) != 1 || h.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopSourceEnded(t *testing.T) {
	h := startLoop(t, harnessOptions{})
	h.source.PushAll(walk(binFreq(10), logic.WindowSize))
	h.source.End()
	h.commands <- logic.CommandReset
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 2 {
		t.Errorf("expected WINDOW and RESET after the source ended, got %d", len(h.pub.Events))
	}
}

func TestPublishStatusStartup(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, status.Config{Broker: "tcp://192.168.1.200:1883"})
	tracker.ShowSteps(42)

	publishStatus(pub, tracker, "STARTUP", "", t0, zap.NewNop())

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "STARTUP" || !se.Retained {
		t.Errorf("got %+v, want retained STARTUP", se)
	}
	payload := string(pub.SystemPayloads[0])
	for _, want := range []string{`"event":"STARTUP"`, `"displayed":42`, `"broker":"tcp://192.168.1.200:1883"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %s: %s", want, payload)
		}
	}
}

func TestPublishStatusError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("offline")

	// Must not panic without a tracker or on failure.
	publishStatus(pub, nil, "STARTUP", "", t0, zap.NewNop())
	if len(pub.SystemEvents) != 0 {
		t.Errorf("expected nothing recorded, got %d", len(pub.SystemEvents))
	}
}

// --- replay and print-state ---

func csvOf(samples []logic.Sample) string {
	var b strings.Builder
	b.WriteString("x,y,z\n")
	for _, s := range samples {
		b.WriteString(strings.Join([]string{
			strconv.FormatFloat(s.X, 'g', -1, 64),
			strconv.FormatFloat(s.Y, 'g', -1, 64),
			strconv.FormatFloat(s.Z, 'g', -1, 64),
		}, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestReplay(t *testing.T) {
	samples := append(walk(binFreq(10), logic.WindowSize), walk(binFreq(12), logic.WindowSize)...)
	samples = append(samples, walk(binFreq(12), 10)...)

	var out bytes.Buffer
	sum, err := replay(strings.NewReader(csvOf(samples)), &out, logic.SampleRateHz, nil)
	if err != nil {
		t.Fatal(err)
	}

	if sum.Windows != 2 || sum.StepWindows != 2 || sum.Samples != len(samples) {
		t.Errorf("summary: got %+v", sum)
	}
	if sum.RunningTotal != 22 {
		t.Errorf("running total: got %v, want 22", sum.RunningTotal)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 2 window lines and a total, got:\n%s", out.String())
	}
	if !strings.Contains(lines[0], "bin= 10") || !strings.Contains(lines[0], "total=10") {
		t.Errorf("first window line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "t=  10.22s") {
		t.Errorf("second window should end at sample 511: %q", lines[1])
	}
	if want := "total: 22 steps in 2 windows (522 samples, 10 left over)"; lines[2] != want {
		t.Errorf("total line: got %q, want %q", lines[2], want)
	}
}

func TestReplayWithBaseline(t *testing.T) {
	var out bytes.Buffer
	sum, err := replay(strings.NewReader(csvOf(walk(binFreq(10), logic.WindowSize))), &out, 50, store.NewMemory(100))
	if err != nil {
		t.Fatal(err)
	}
	if sum.RunningTotal != 110 {
		t.Errorf("running total: got %v, want 110", sum.RunningTotal)
	}
}

func TestReplayUsesSampleRate(t *testing.T) {
	// The same ten cycles per window are a 3.9 Hz cadence at 100 Hz.
	var out bytes.Buffer
	sum, err := replay(strings.NewReader(csvOf(walk(binFreq(10), logic.WindowSize))), &out, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Windows != 1 || sum.StepWindows != 0 || sum.RunningTotal != 0 {
		t.Errorf("summary: got %+v", sum)
	}
	if !strings.Contains(out.String(), "freq= 3.91 Hz") {
		t.Errorf("window line should use the configured rate:\n%s", out.String())
	}
}

func TestReplayErrors(t *testing.T) {
	if _, err := replay(strings.NewReader("1,2,3\n"), &bytes.Buffer{}, 0, nil); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := replay(strings.NewReader("1,2,3\n1,oops,3\n"), &bytes.Buffer{}, 50, nil); err == nil {
		t.Error("expected error for malformed row")
	}
}

func TestPrintState(t *testing.T) {
	fs := store.NewFileStore(t.TempDir() + "/state.yaml")

	var out bytes.Buffer
	if err := printState(&out, fs); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "baseline: 0 ") {
		t.Errorf("missing file: got %q", out.String())
	}

	if err := fs.SaveBaseline(4321); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := printState(&out, fs); err != nil {
		t.Fatal(err)
	}
	if want := "baseline: 4321 (" + fs.Path() + ")\n"; out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

// --- command line ---

func TestRootCommandPrintState(t *testing.T) {
	path := t.TempDir() + "/state.yaml"
	if err := store.NewFileStore(path).SaveBaseline(77); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"print-state", "--state", path, "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "baseline: 77") {
		t.Errorf("got %q", out.String())
	}
}

func TestRootCommandEnvOverride(t *testing.T) {
	path := t.TempDir() + "/state.yaml"
	if err := store.NewFileStore(path).SaveBaseline(12); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STEP_SENSOR_STATE_PATH", path)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"print-state", "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "baseline: 12") {
		t.Errorf("got %q", out.String())
	}
}

func TestRootCommandReplay(t *testing.T) {
	csvPath := t.TempDir() + "/walk.csv"
	if err := os.WriteFile(csvPath, []byte(csvOf(walk(binFreq(14), logic.WindowSize))), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"replay", csvPath, "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "total: 14 steps in 1 windows") {
		t.Errorf("got %q", out.String())
	}
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"print-state", "--log-format", "xml"})
	if err := root.Execute(); err == nil {
		t.Error("expected validation error for log format")
	}
}
