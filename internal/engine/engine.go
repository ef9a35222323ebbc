// Package engine orchestrates the full pipeline: fetch price data, optimize
// rule stacks per instrument, persist the winners, and run the daily signal
// scan against the resulting active strategies.
package engine

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/config"
	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/optimizer"
	"github.com/rxtech-lab/edgefinder/internal/report"
	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/signalscan"
	"github.com/rxtech-lab/edgefinder/internal/store"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
	"github.com/rxtech-lab/edgefinder/pkg/marketdata"
	"github.com/rxtech-lab/edgefinder/pkg/marketdata/provider"
)

// Engine wires the market data client, optimizer, store and signal scan.
type Engine struct {
	config   config.Config
	registry rule.Registry
	store    store.Store
	client   *marketdata.Client
	log      *logger.Logger
}

// RunSummary is the outcome of one full pipeline run.
type RunSummary struct {
	RunTimestamp time.Time
	Reports      []optimizer.InstrumentReport
	Persisted    int
	ReportPath   string
	Scan         *signalscan.ScanResult
}

// NewEngine builds the pipeline from a validated configuration.
func NewEngine(ctx context.Context, cfg config.Config, registry rule.Registry, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	st, err := NewStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	if err := st.Initialize(ctx); err != nil {
		st.Close()

		return nil, err
	}

	client, err := newMarketDataClient(cfg, log)
	if err != nil {
		st.Close()

		return nil, err
	}

	if err := client.Initialize(ctx); err != nil {
		st.Close()
		client.Close()

		return nil, err
	}

	return &Engine{
		config:   cfg,
		registry: registry,
		store:    st,
		client:   client,
		log:      log,
	}, nil
}

// NewStore builds the configured persistence backend.
func NewStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "duckdb":
		return store.NewDuckDBStore(cfg.Path, log)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DSN, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported store backend %q", cfg.Backend)
	}
}

func newMarketDataClient(cfg config.Config, log *logger.Logger) (*marketdata.Client, error) {
	freeze, err := cfg.FreezeDate()
	if err != nil {
		return nil, err
	}

	cachePath := ""
	if cfg.Data.Provider != string(provider.ProviderCSV) {
		cachePath = cfg.Data.Path
	}

	return marketdata.NewClient(marketdata.ClientConfig{
		Provider:         provider.ProviderType(cfg.Data.Provider),
		DataPath:         cfg.Data.Path,
		CachePath:        cachePath,
		YearsHistory:     cfg.Data.YearsHistory,
		FreezeDate:       freeze,
		PolygonAPIKey:    os.Getenv("POLYGON_API_KEY"),
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
	}, log)
}

// Close releases the store and market data handles.
func (e *Engine) Close() error {
	clientErr := e.client.Close()
	storeErr := e.store.Close()

	if storeErr != nil {
		return storeErr
	}

	return clientErr
}

// Store exposes the persistence backend, for the query API.
func (e *Engine) Store() store.Store {
	return e.store
}

// Optimize runs the optimization stage: fetch every instrument's series,
// evaluate all candidate stacks, persist the surviving strategies and write
// the run report.
func (e *Engine) Optimize(ctx context.Context, showProgress bool) (RunSummary, error) {
	runTimestamp := time.Now().UTC()

	summary := RunSummary{
		RunTimestamp: runTimestamp,
		Reports:      nil,
		Persisted:    0,
		ReportPath:   "",
		Scan:         nil,
	}

	series, skipped := e.client.GetAll(ctx, e.config.Data.Instruments)
	for instrument, err := range skipped {
		e.log.Warn("instrument has no usable data",
			zap.String("instrument", instrument),
			zap.Error(err),
		)
	}

	if len(series) == 0 {
		return summary, errors.New(errors.ErrCodeDataNotFound, "no instrument has usable price data")
	}

	stacks, err := optimizer.EnumerateStacks(e.config.Rules.Baseline, e.config.Rules.Filters)
	if err != nil {
		return summary, err
	}

	opt, err := optimizer.NewOptimizer(e.registry, e.config.OptimizerConfig(showProgress), e.log)
	if err != nil {
		return summary, err
	}

	reports, err := opt.OptimizeAll(ctx, series, stacks)
	if err != nil {
		return summary, err
	}

	summary.Reports = reports

	results := collectResults(runTimestamp, reports)
	if err := e.store.InsertStrategies(ctx, results); err != nil {
		return summary, err
	}

	summary.Persisted = len(results)

	if e.config.ResultsFolder != "" {
		path, err := report.Write(e.config.ResultsFolder,
			report.Build(runTimestamp, e.config.OptimizerConfig(false), reports))
		if err != nil {
			return summary, err
		}

		summary.ReportPath = path
	}

	e.log.Info("optimization complete",
		zap.Int("instruments", len(reports)),
		zap.Int("strategies_persisted", summary.Persisted),
	)

	return summary, nil
}

// Scan runs the daily signal scan using the latest persisted strategy per
// instrument. The asOf date defaults to today (or the freeze date).
func (e *Engine) Scan(ctx context.Context) (signalscan.ScanResult, error) {
	asOf := time.Now().UTC()

	freeze, err := e.config.FreezeDate()
	if err != nil {
		return signalscan.ScanResult{}, err
	}

	if freeze.IsSome() {
		asOf = freeze.Unwrap()
	}

	active, err := e.activeStrategies(ctx)
	if err != nil {
		return signalscan.ScanResult{}, err
	}

	if len(active) == 0 {
		return signalscan.ScanResult{}, errors.New(errors.ErrCodeNoCandidates,
			"no persisted strategies; run optimize first")
	}

	series, skipped := e.client.GetAll(ctx, e.config.Data.Instruments)
	for instrument, fetchErr := range skipped {
		e.log.Warn("instrument has no usable data",
			zap.String("instrument", instrument),
			zap.Error(fetchErr),
		)
	}

	identifier, err := signalscan.NewIdentifier(e.store, e.registry, e.config.Backtest.HoldPeriod, e.log)
	if err != nil {
		return signalscan.ScanResult{}, err
	}

	return identifier.Scan(ctx, asOf, series, active)
}

// Run executes the full pipeline: optimize, persist, then scan.
func (e *Engine) Run(ctx context.Context, showProgress bool) (RunSummary, error) {
	summary, err := e.Optimize(ctx, showProgress)
	if err != nil {
		return summary, err
	}

	scan, err := e.Scan(ctx)
	if err != nil {
		return summary, err
	}

	summary.Scan = &scan

	return summary, nil
}

// Download fetches and caches every configured instrument's history without
// optimizing, to warm the bar cache.
func (e *Engine) Download(ctx context.Context) (int, map[string]error) {
	series, skipped := e.client.GetAll(ctx, e.config.Data.Instruments)

	return len(series), skipped
}

// activeStrategies resolves the most recent persisted strategy per
// instrument. ListStrategies returns rows newest run first, so the first row
// seen per instrument wins.
func (e *Engine) activeStrategies(ctx context.Context) (map[string]types.RuleStack, error) {
	rows, err := e.store.ListStrategies(ctx, store.StrategyFilter{
		Instrument: nil,
		Since:      nil,
	})
	if err != nil {
		return nil, err
	}

	active := make(map[string]types.RuleStack)

	for _, row := range rows {
		if _, seen := active[row.Instrument]; seen {
			continue
		}

		active[row.Instrument] = row.RuleStack
	}

	return active, nil
}

// collectResults flattens the selected candidates of every instrument report
// into persistable strategy rows.
func collectResults(runTimestamp time.Time, reports []optimizer.InstrumentReport) []types.StrategyResult {
	var results []types.StrategyResult

	for _, rep := range reports {
		for _, candidate := range rep.Selected {
			results = append(results, types.StrategyResult{
				Instrument:   rep.Instrument,
				RuleStack:    candidate.Stack,
				RunTimestamp: runTimestamp,
				EdgeScore:    candidate.EdgeScore,
				WinPct:       candidate.Stats.WinPct,
				Sharpe:       candidate.Stats.Sharpe,
				TotalTrades:  candidate.Stats.TotalTrades,
				AvgReturn:    candidate.Stats.AvgReturn,
			})
		}
	}

	return results
}
