// Package provider implements the daily-bar price data providers.
package provider

import (
	"context"
	"time"

	"github.com/rxtech-lab/edgefinder/internal/types"
)

// ProviderType identifies a price-data provider implementation.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
	ProviderCSV     ProviderType = "csv"
)

// Provider fetches daily OHLCV bars for one instrument over a date range.
// Implementations return bars ordered by strictly increasing date, with no
// gaps beyond non-trading days.
type Provider interface {
	// Name returns the provider type.
	Name() ProviderType
	// FetchDailyBars returns the instrument's daily bars in [start, end].
	FetchDailyBars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error)
}

// normalizeDate truncates a timestamp to midnight UTC so bars from different
// providers compare equal on the same trading day.
func normalizeDate(t time.Time) time.Time {
	year, month, day := t.UTC().Date()

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
