// Package report writes the per-run YAML snapshot of optimization outcomes.
package report

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/edgefinder/internal/optimizer"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

const (
	reportDirPerm  = 0o755
	reportFilePerm = 0o644
)

// StackReport is one evaluated stack's outcome in the run report.
type StackReport struct {
	Stack       string  `yaml:"stack"`
	EdgeScore   float64 `yaml:"edge_score"`
	WinPct      float64 `yaml:"win_pct"`
	Sharpe      float64 `yaml:"sharpe"`
	TotalTrades int     `yaml:"total_trades"`
	AvgReturn   float64 `yaml:"avg_return"`
}

// SkipReport is one excluded stack with its reason.
type SkipReport struct {
	Stack  string `yaml:"stack"`
	Reason string `yaml:"reason"`
}

// InstrumentReport is one instrument's section of the run report.
type InstrumentReport struct {
	Instrument string        `yaml:"instrument"`
	Selected   []StackReport `yaml:"selected,omitempty"`
	Evaluated  int           `yaml:"evaluated"`
	Skipped    []SkipReport  `yaml:"skipped,omitempty"`
	Error      string        `yaml:"error,omitempty"`
}

// RunReport is the full snapshot of one optimization run.
type RunReport struct {
	RunTimestamp time.Time          `yaml:"run_timestamp"`
	HoldPeriod   int                `yaml:"hold_period"`
	MinTrades    int                `yaml:"min_trades"`
	Weights      optimizer.Weights  `yaml:"edge_score_weights"`
	Instruments  []InstrumentReport `yaml:"instruments"`
}

// Build assembles the run report from the optimizer's per-instrument reports.
func Build(runTimestamp time.Time, config optimizer.Config, reports []optimizer.InstrumentReport) RunReport {
	out := RunReport{
		RunTimestamp: runTimestamp,
		HoldPeriod:   config.HoldPeriod,
		MinTrades:    config.MinTrades,
		Weights:      config.Weights,
		Instruments:  make([]InstrumentReport, 0, len(reports)),
	}

	for _, rep := range reports {
		section := InstrumentReport{
			Instrument: rep.Instrument,
			Selected:   nil,
			Evaluated:  rep.Evaluated,
			Skipped:    nil,
			Error:      "",
		}

		if rep.Err != nil {
			section.Error = rep.Err.Error()
		}

		for _, candidate := range rep.Selected {
			section.Selected = append(section.Selected, StackReport{
				Stack:       candidate.Stack.Label(),
				EdgeScore:   candidate.EdgeScore,
				WinPct:      candidate.Stats.WinPct,
				Sharpe:      candidate.Stats.Sharpe,
				TotalTrades: candidate.Stats.TotalTrades,
				AvgReturn:   candidate.Stats.AvgReturn,
			})
		}

		for _, skip := range rep.Skipped {
			section.Skipped = append(section.Skipped, SkipReport{
				Stack:  skip.Stack.Label(),
				Reason: skip.Reason,
			})
		}

		out.Instruments = append(out.Instruments, section)
	}

	return out
}

// Write serializes the report to {folder}/{timestamp}/report.yaml and returns
// the written path.
func Write(folder string, rep RunReport) (string, error) {
	dir := filepath.Join(folder, rep.RunTimestamp.UTC().Format("2006-01-02T15-04-05Z"))

	if err := os.MkdirAll(dir, reportDirPerm); err != nil {
		return "", errors.Wrapf(errors.ErrCodeUnknown, err, "failed to create report folder %s", dir)
	}

	data, err := yaml.Marshal(rep)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUnknown, "failed to marshal run report", err)
	}

	path := filepath.Join(dir, "report.yaml")

	if err := os.WriteFile(path, data, reportFilePerm); err != nil {
		return "", errors.Wrapf(errors.ErrCodeUnknown, err, "failed to write run report %s", path)
	}

	return path, nil
}
