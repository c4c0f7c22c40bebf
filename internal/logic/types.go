// Package logic contains the pure step-detection pipeline.
// This package has NO I/O (no sensors, MQTT, files or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Pipeline constants. The estimator trusts SampleRateHz; it does not measure
// the real delivery rate.
const (
	WindowSize   = 256
	SampleRateHz = 50.0
	MinStepFreq  = 1.0
	MaxStepFreq  = 3.0
)

// Sample is one 3-axis accelerometer reading.
type Sample struct {
	X float64
	Y float64
	Z float64
}

// Window is a full block of time-ordered samples analysed as one unit.
type Window []Sample

// Phase is the pipeline lifecycle state.
type Phase string

const (
	PhaseInactive   Phase = "INACTIVE"
	PhaseBuffering  Phase = "BUFFERING"
	PhaseEstimating Phase = "ESTIMATING"
)

// Command is a host request forwarded to the pipeline owner.
type Command string

const (
	CommandActivate   Command = "ACTIVATE"
	CommandDeactivate Command = "DEACTIVATE"
	CommandReset      Command = "RESET"
)

// ParseCommand maps a case-sensitive command name to a Command.
func ParseCommand(s string) (Command, bool) {
	switch Command(s) {
	case CommandActivate, CommandDeactivate, CommandReset:
		return Command(s), true
	}
	return "", false
}

// Display receives the displayed step count.
type Display interface {
	ShowSteps(steps int)
}

// BaselineStore persists the step baseline across restarts.
type BaselineStore interface {
	// LoadBaseline returns the stored baseline, or 0 with a nil error if none exists.
	LoadBaseline() (float64, error)
	SaveBaseline(steps float64) error
}

// Spectrum holds the diagnostics of one window analysis.
type Spectrum struct {
	DominantBin int
	FrequencyHz float64
	Power       float64
	Steps       int
}

// WindowResult describes a completed window.
type WindowResult struct {
	Timestamp    time.Time
	Spectrum     Spectrum
	RunningTotal float64
}

// ResetResult acknowledges a reset request.
type ResetResult struct {
	Timestamp time.Time
	Baseline  float64
	// Err is set when the baseline could not be persisted. The in-memory
	// baseline is updated regardless.
	Err error
}

// Counts tracks pipeline activity since startup.
type Counts struct {
	Samples     int
	Windows     int
	StepWindows int
	Resets      int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp    time.Time
	Uptime       time.Duration
	Counts       Counts
	RunningTotal float64
	Baseline     float64
}
