package report

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/edgefinder/internal/optimizer"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

func sampleReports() []optimizer.InstrumentReport {
	stack := types.RuleStack{
		{Name: "Golden cross", Type: types.RuleTypeSMACrossover, Params: nil},
	}

	return []optimizer.InstrumentReport{
		{
			Instrument: "AAPL",
			Selected: []optimizer.Candidate{
				{
					Stack: stack,
					Stats: types.SummaryStats{
						TotalTrades: 12,
						WinPct:      0.75,
						AvgReturn:   0.02,
						Sharpe:      0.4,
					},
					EdgeScore: 0.73,
					Trades:    nil,
				},
			},
			Evaluated: 4,
			Skipped: []optimizer.SkippedStack{
				{
					Stack:  stack,
					Code:   errors.ErrCodeZeroTrades,
					Reason: "stack produced no closed trades",
				},
			},
			Err: nil,
		},
		{
			Instrument: "MSFT",
			Selected:   nil,
			Evaluated:  0,
			Skipped:    nil,
			Err:        errors.New(errors.ErrCodeMalformedSeries, "unordered dates"),
		},
	}
}

func TestBuildRunReport(t *testing.T) {
	runTimestamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	built := Build(runTimestamp, optimizer.Config{
		MinTrades:    10,
		HoldPeriod:   20,
		Weights:      optimizer.Weights{WinPct: 0.6, Sharpe: 0.4},
		TopK:         1,
		Workers:      1,
		ShowProgress: false,
	}, sampleReports())

	require.Equal(t, runTimestamp, built.RunTimestamp)
	require.Equal(t, 20, built.HoldPeriod)
	require.Len(t, built.Instruments, 2)

	apple := built.Instruments[0]
	require.Equal(t, "AAPL", apple.Instrument)
	require.Len(t, apple.Selected, 1)
	require.Equal(t, "Golden cross", apple.Selected[0].Stack)
	require.Equal(t, 12, apple.Selected[0].TotalTrades)
	require.Len(t, apple.Skipped, 1)
	require.Empty(t, apple.Error)

	msft := built.Instruments[1]
	require.Empty(t, msft.Selected)
	require.NotEmpty(t, msft.Error)
}

func TestWriteRunReport(t *testing.T) {
	dir := t.TempDir()
	runTimestamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	built := Build(runTimestamp, optimizer.Config{
		MinTrades:    10,
		HoldPeriod:   20,
		Weights:      optimizer.Weights{WinPct: 0.6, Sharpe: 0.4},
		TopK:         1,
		Workers:      1,
		ShowProgress: false,
	}, sampleReports())

	path, err := Write(dir, built)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var restored RunReport
	require.NoError(t, yaml.Unmarshal(data, &restored))
	require.Equal(t, 20, restored.HoldPeriod)
	require.Len(t, restored.Instruments, 2)
	require.Equal(t, "AAPL", restored.Instruments[0].Instrument)
}
