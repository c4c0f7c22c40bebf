package logic

import "time"

// Pipeline ties the sample buffer, estimator and accumulator together and
// tracks the activation lifecycle. Not safe for concurrent use: a single
// owner must feed samples and commands.
type Pipeline struct {
	buffer      *SampleBuffer
	estimator   *Estimator
	accumulator *Accumulator
	display     Display

	phase         Phase
	loaded        bool
	startTime     time.Time
	counts        Counts
	lastWindow    *WindowResult
	lastHeartbeat time.Time
}

// NewPipeline creates an inactive pipeline at the nominal SampleRateHz.
// The startTime is used for calculating uptime in heartbeat events. A nil
// display is allowed.
func NewPipeline(store BaselineStore, display Display, startTime time.Time) *Pipeline {
	return NewPipelineAt(SampleRateHz, store, display, startTime)
}

// NewPipelineAt is NewPipeline for sources delivering sampleRateHz.
func NewPipelineAt(sampleRateHz float64, store BaselineStore, display Display, startTime time.Time) *Pipeline {
	return &Pipeline{
		buffer:        NewSampleBuffer(WindowSize),
		estimator:     NewEstimator(sampleRateHz),
		accumulator:   NewAccumulator(store),
		display:       display,
		phase:         PhaseInactive,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Activate moves the pipeline from Inactive to Buffering with an empty
// window. The baseline is loaded on the first activation only. The returned
// error reports a failed load; the pipeline is active regardless.
func (p *Pipeline) Activate() error {
	if p.phase != PhaseInactive {
		return nil
	}

	err := p.load()
	p.buffer.Clear()
	p.phase = PhaseBuffering
	p.show(p.accumulator.RunningTotal())
	return err
}

// load reads the baseline once per pipeline lifetime.
func (p *Pipeline) load() error {
	if p.loaded {
		return nil
	}
	p.loaded = true
	return p.accumulator.Load()
}

// Deactivate moves the pipeline to Inactive and discards any partial window.
func (p *Pipeline) Deactivate() {
	p.buffer.Clear()
	p.phase = PhaseInactive
}

// Process feeds one sample. It returns a result when the sample completed a
// window, nil otherwise. Samples are ignored while inactive.
func (p *Pipeline) Process(s Sample, now time.Time) *WindowResult {
	if p.phase == PhaseInactive {
		return nil
	}
	p.counts.Samples++

	var result *WindowResult
	if w, full := p.buffer.Append(s); full {
		p.phase = PhaseEstimating
		spec := p.estimator.Analyze(w)
		p.accumulator.OnEstimate(spec.Steps)
		p.phase = PhaseBuffering

		p.counts.Windows++
		if spec.Steps > 0 {
			p.counts.StepWindows++
		}
		result = &WindowResult{
			Timestamp:    now,
			Spectrum:     spec,
			RunningTotal: p.accumulator.RunningTotal(),
		}
		p.lastWindow = result
	}

	// The display follows the running total after every sample, not only
	// when a window completes.
	p.show(p.accumulator.RunningTotal())
	return result
}

// Reset stores the running total as the new baseline and shows zero.
// The running total itself keeps counting from where it was, so the next
// processed sample shows the full total again. A reset before the first
// activation loads the stored baseline first so it is never overwritten
// with zero.
func (p *Pipeline) Reset(now time.Time) ResetResult {
	_ = p.load()
	baseline, err := p.accumulator.Reset()
	p.counts.Resets++
	if p.display != nil {
		p.display.ShowSteps(0)
	}
	return ResetResult{
		Timestamp: now,
		Baseline:  baseline,
		Err:       err,
	}
}

// Handle applies a host command. Only reset produces a result.
func (p *Pipeline) Handle(cmd Command, now time.Time) (*ResetResult, error) {
	switch cmd {
	case CommandActivate:
		return nil, p.Activate()
	case CommandDeactivate:
		p.Deactivate()
	case CommandReset:
		err := p.load()
		r := p.Reset(now)
		return &r, err
	}
	return nil, nil
}

func (p *Pipeline) show(total float64) {
	if p.display != nil {
		p.display.ShowSteps(int(total))
	}
}

// Phase returns the current lifecycle phase.
func (p *Pipeline) Phase() Phase {
	return p.phase
}

// IsActive reports whether samples are being accepted.
func (p *Pipeline) IsActive() bool {
	return p.phase != PhaseInactive
}

// Buffered returns the number of samples in the current partial window.
func (p *Pipeline) Buffered() int {
	return p.buffer.Len()
}

// RunningTotal returns the accumulated step count.
func (p *Pipeline) RunningTotal() float64 {
	return p.accumulator.RunningTotal()
}

// Baseline returns the step count captured at the last reset.
func (p *Pipeline) Baseline() float64 {
	return p.accumulator.Baseline()
}

// LastWindow returns the most recent window result, or nil.
func (p *Pipeline) LastWindow() *WindowResult {
	return p.lastWindow
}

// CountsSnapshot returns a copy of the activity counters.
func (p *Pipeline) CountsSnapshot() Counts {
	return p.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (p *Pipeline) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(p.lastHeartbeat) < interval {
		return nil
	}

	p.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp:    now,
		Uptime:       now.Sub(p.startTime),
		Counts:       p.counts,
		RunningTotal: p.accumulator.RunningTotal(),
		Baseline:     p.accumulator.Baseline(),
	}
}
