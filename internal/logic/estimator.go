package logic

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Estimator converts a window of samples into a step estimate using the
// dominant frequency of the acceleration magnitude.
//
// The output depends only on the input window. The struct only caches the
// transform plan and scratch buffers, so it is not safe for concurrent use.
type Estimator struct {
	sampleRate float64

	n      int
	fft    *fourier.FFT
	mags   []float64
	coeffs []complex128
	power  []float64
}

// NewEstimator creates an estimator for windows sampled at sampleRateHz.
// A non-positive rate selects SampleRateHz.
func NewEstimator(sampleRateHz float64) *Estimator {
	if sampleRateHz <= 0 || math.IsNaN(sampleRateHz) || math.IsInf(sampleRateHz, 0) {
		sampleRateHz = SampleRateHz
	}
	return &Estimator{sampleRate: sampleRateHz}
}

// SampleRate returns the rate the estimator converts bins with.
func (e *Estimator) SampleRate() float64 {
	return e.sampleRate
}

// Estimate returns the number of steps taken during the window.
func (e *Estimator) Estimate(w Window) int {
	return e.Analyze(w).Steps
}

// Analyze runs the full spectral analysis of a window.
//
// The DC bin is excluded from the peak search and there is no minimum power
// gate: a still window always yields some dominant bin, and only the walking
// band check keeps it from counting.
func (e *Estimator) Analyze(w Window) Spectrum {
	n := len(w)
	if n < 2 {
		return Spectrum{}
	}
	e.prepare(n)

	for i, s := range w {
		e.mags[i] = math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
	}

	// Half spectrum, bins 0..n/2. The upper half of a real-input DFT mirrors
	// the lower half, so the first maximum always lies here.
	e.coeffs = e.fft.Coefficients(e.coeffs, e.mags)
	for k, c := range e.coeffs {
		e.power[k] = real(c)*real(c) + imag(c)*imag(c)
	}

	bin := dominantBin(e.power)
	freq := float64(bin) * (e.sampleRate / float64(n))

	spec := Spectrum{
		DominantBin: bin,
		FrequencyHz: freq,
		Power:       e.power[bin],
	}
	if freq >= MinStepFreq && freq <= MaxStepFreq {
		// Cadence (Hz) times the window span in seconds.
		spec.Steps = int(math.Floor(freq * float64(n) / e.sampleRate))
	}
	return spec
}

// dominantBin returns the index of the largest power, skipping the DC bin.
// floats.MaxIdx keeps the first index on ties.
func dominantBin(power []float64) int {
	return floats.MaxIdx(power[1:]) + 1
}

func (e *Estimator) prepare(n int) {
	if e.fft != nil && e.n == n {
		return
	}
	e.n = n
	e.fft = fourier.NewFFT(n)
	e.mags = make([]float64, n)
	e.coeffs = nil
	e.power = make([]float64, n/2+1)
}
