package optimizer

import (
	"context"
	"os"
	"sort"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rxtech-lab/edgefinder/internal/types"
)

// OptimizeAll runs OptimizeInstrument for every instrument over a bounded
// worker pool. Instruments share no mutable state, so parallelism is a pure
// throughput optimization: results are merged back by instrument key and
// neither ordering nor values depend on the worker count. A failure for one
// instrument is carried in its report and never aborts the others; only
// context cancellation returns an error.
func (o *Optimizer) OptimizeAll(ctx context.Context, seriesByInstrument map[string]types.PriceSeries, stacks []types.RuleStack) ([]InstrumentReport, error) {
	instruments := make([]string, 0, len(seriesByInstrument))
	for instrument := range seriesByInstrument {
		instruments = append(instruments, instrument)
	}

	sort.Strings(instruments)

	var bar *progressbar.ProgressBar
	if o.config.ShowProgress {
		bar = progressbar.NewOptions(len(instruments),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Optimizing"),
			progressbar.OptionShowCount(),
		)
	}

	reports := make([]InstrumentReport, len(instruments))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Workers)

	for i, instrument := range instruments {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			reports[i] = o.OptimizeInstrument(seriesByInstrument[instrument], stacks)

			if report := reports[i]; report.Err != nil {
				o.log.Warn("instrument skipped",
					zap.String("instrument", instrument),
					zap.Error(report.Err),
				)
			}

			if bar != nil {
				_ = bar.Add(1)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if bar != nil {
		_ = bar.Finish()
	}

	return reports, nil
}
