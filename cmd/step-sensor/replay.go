package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/sensor"
	"github.com/sweeney/step-sensor/internal/store"
)

func newReplayCmd(a *app) *cobra.Command {
	var useState bool
	cmd := &cobra.Command{
		Use:   "replay <file.csv>",
		Short: "Run a recorded CSV through the step estimator and print each window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var baselines logic.BaselineStore
			if useState {
				baselines = store.NewFileStore(a.cfg.State.Path)
			}
			sum, err := replay(f, cmd.OutOrStdout(), a.cfg.Source.SampleRateHz, baselines)
			if err != nil {
				return err
			}
			a.logger.Debug("replay finished",
				zap.Int("samples", sum.Samples),
				zap.Int("windows", sum.Windows),
				zap.Float64("running_total", sum.RunningTotal))
			return nil
		},
	}
	cmd.Flags().BoolVar(&useState, "with-state", false, "start from the persisted baseline")
	return cmd
}

func newPrintStateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the persisted baseline and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printState(cmd.OutOrStdout(), store.NewFileStore(a.cfg.State.Path))
		},
	}
}

// replaySummary totals a replay run.
type replaySummary struct {
	Samples      int
	Windows      int
	StepWindows  int
	RunningTotal float64
}

// replay feeds every sample from r through a fresh pipeline and writes one
// line per completed window. Sample times are synthesised from rate.
func replay(r io.Reader, w io.Writer, rate float64, baselines logic.BaselineStore) (replaySummary, error) {
	if rate <= 0 {
		return replaySummary{}, fmt.Errorf("sample rate must be positive, got %v", rate)
	}
	interval := time.Duration(float64(time.Second) / rate)

	var t0 time.Time
	p := logic.NewPipelineAt(rate, baselines, nil, t0)
	if err := p.Activate(); err != nil {
		fmt.Fprintf(w, "baseline unavailable (%v), starting from 0\n", err)
	}

	dec := sensor.NewDecoder(r)
	n := 0
	for {
		s, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return replaySummary{}, err
		}
		at := t0.Add(time.Duration(n) * interval)
		n++

		res := p.Process(s, at)
		if res == nil {
			continue
		}
		c := p.CountsSnapshot()
		fmt.Fprintf(w, "window %3d  t=%7.2fs  bin=%3d  freq=%5.2f Hz  steps=%3d  total=%d\n",
			c.Windows, at.Sub(t0).Seconds(), res.Spectrum.DominantBin,
			res.Spectrum.FrequencyHz, res.Spectrum.Steps, int(res.RunningTotal))
	}

	c := p.CountsSnapshot()
	sum := replaySummary{
		Samples:      c.Samples,
		Windows:      c.Windows,
		StepWindows:  c.StepWindows,
		RunningTotal: p.RunningTotal(),
	}
	fmt.Fprintf(w, "total: %d steps in %d windows (%d samples, %d left over)\n",
		int(sum.RunningTotal), sum.Windows, sum.Samples, p.Buffered())
	return sum, nil
}

func printState(w io.Writer, baselines *store.FileStore) error {
	v, err := baselines.LoadBaseline()
	if errors.Is(err, store.ErrMissingKey) {
		fmt.Fprintf(w, "baseline: not set (%s)\n", baselines.Path())
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", baselines.Path(), err)
	}
	fmt.Fprintf(w, "baseline: %d (%s)\n", int(v), baselines.Path())
	return nil
}
