// Package marketdata assembles price providers and the local bar cache into
// the price series source the optimizer and signal scan consume.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
	"github.com/rxtech-lab/edgefinder/pkg/marketdata/provider"
)

// Remote API pacing. CSV reads are local and skip throttling entirely.
const defaultRequestsPerSecond = 4.0

// ClientConfig configures the market data client.
type ClientConfig struct {
	// Provider selects the price-data source.
	Provider provider.ProviderType `validate:"required,oneof=polygon binance csv"`
	// DataPath is the CSV directory for the csv provider.
	DataPath string
	// CachePath is the DuckDB bar cache file; empty disables caching.
	CachePath string
	// YearsHistory is how many years of daily bars to request.
	YearsHistory int `validate:"gte=1"`
	// FreezeDate caps all series at a fixed date for deterministic replay.
	FreezeDate optional.Option[time.Time]
	// PolygonAPIKey authenticates the polygon provider.
	PolygonAPIKey string
	// BinanceAPIKey and BinanceSecretKey authenticate the binance provider.
	// Public kline endpoints work without them.
	BinanceAPIKey    string
	BinanceSecretKey string
}

// Client fetches, caches and freeze-caps price series.
type Client struct {
	config   ClientConfig
	provider provider.Provider
	cache    *BarCache
	log      *logger.Logger
}

// NewClient validates the config, builds the configured provider and opens
// the bar cache when one is configured.
func NewClient(config ClientConfig, log *logger.Logger) (*Client, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid market data config", err)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	prov, err := buildProvider(config)
	if err != nil {
		return nil, err
	}

	var cache *BarCache

	if config.CachePath != "" && config.Provider != provider.ProviderCSV {
		cache, err = NewBarCache(config.CachePath, log)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		config:   config,
		provider: prov,
		cache:    cache,
		log:      log,
	}, nil
}

func buildProvider(config ClientConfig) (provider.Provider, error) {
	switch config.Provider {
	case provider.ProviderPolygon:
		inner, err := provider.NewPolygonClient(config.PolygonAPIKey)
		if err != nil {
			return nil, err
		}

		return provider.NewThrottledProvider(inner, defaultRequestsPerSecond), nil
	case provider.ProviderBinance:
		inner := provider.NewBinanceClient(config.BinanceAPIKey, config.BinanceSecretKey)

		return provider.NewThrottledProvider(inner, defaultRequestsPerSecond), nil
	case provider.ProviderCSV:
		return provider.NewCSVClient(config.DataPath)
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedProvider, "unsupported provider %q", config.Provider)
	}
}

// Initialize prepares the bar cache.
func (c *Client) Initialize(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	return c.cache.Initialize(ctx)
}

// Close releases the bar cache handle.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}

	return c.cache.Close()
}

// GetPriceSeries returns the instrument's validated daily price series, cache
// first. With a freeze date configured the series never extends past it, and
// an empty frozen window is an error rather than a silently empty series.
func (c *Client) GetPriceSeries(ctx context.Context, instrument string) (types.PriceSeries, error) {
	end := time.Now().UTC()
	if c.config.FreezeDate.IsSome() {
		end = c.config.FreezeDate.Unwrap()
	}

	start := end.AddDate(-c.config.YearsHistory, 0, 0)

	bars, err := c.fetchBars(ctx, instrument, start, end)
	if err != nil {
		return types.PriceSeries{}, err
	}

	series := types.PriceSeries{
		Instrument: instrument,
		Bars:       bars,
	}

	if c.config.FreezeDate.IsSome() {
		series = series.TruncateAfter(c.config.FreezeDate.Unwrap())
		if series.Len() == 0 {
			return types.PriceSeries{}, errors.Newf(errors.ErrCodeEmptyFrozenRange,
				"no bars for %s at or before freeze date %s",
				instrument, c.config.FreezeDate.Unwrap().Format(time.DateOnly))
		}
	}

	if series.Len() == 0 {
		return types.PriceSeries{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars for %s", instrument)
	}

	if err := series.Validate(); err != nil {
		return types.PriceSeries{}, err
	}

	return series, nil
}

// GetAll fetches the series of every instrument, keyed by symbol. Instruments
// whose data cannot be fetched or validated are dropped with a warning; the
// per-instrument error surfaces in the returned skip map.
func (c *Client) GetAll(ctx context.Context, instruments []string) (map[string]types.PriceSeries, map[string]error) {
	sorted := make([]string, len(instruments))
	copy(sorted, instruments)
	sort.Strings(sorted)

	series := make(map[string]types.PriceSeries, len(sorted))
	skipped := make(map[string]error)

	for _, instrument := range sorted {
		fetched, err := c.GetPriceSeries(ctx, instrument)
		if err != nil {
			c.log.Warn("skipping instrument",
				zap.String("instrument", instrument),
				zap.Error(err),
			)

			skipped[instrument] = err

			continue
		}

		series[instrument] = fetched
	}

	return series, skipped
}

// fetchBars serves from the cache when it already covers the window, pulling
// only the missing tail from the provider otherwise.
func (c *Client) fetchBars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	if c.cache == nil {
		return c.provider.FetchDailyBars(ctx, instrument, start, end)
	}

	latest, cached, err := c.cache.LatestDate(ctx, instrument)
	if err != nil {
		return nil, err
	}

	fetchStart := start
	if cached {
		fetchStart = latest.AddDate(0, 0, 1)
	}

	if !cached || !fetchStart.After(end) {
		fetched, err := c.provider.FetchDailyBars(ctx, instrument, fetchStart, end)
		if err != nil {
			return nil, err
		}

		if err := c.cache.Put(ctx, instrument, fetched); err != nil {
			return nil, err
		}
	}

	return c.cache.Get(ctx, instrument, start, end)
}
