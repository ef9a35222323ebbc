package provider

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// PolygonClient fetches daily aggregates from Polygon.io.
type PolygonClient struct {
	client *polygon.Client
}

// Compile-time interface check.
var _ Provider = (*PolygonClient)(nil)

// NewPolygonClient creates a Polygon provider.
func NewPolygonClient(apiKey string) (*PolygonClient, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon api key is required")
	}

	return &PolygonClient{
		client: polygon.New(apiKey),
	}, nil
}

// Name returns the provider type.
func (c *PolygonClient) Name() ProviderType {
	return ProviderPolygon
}

// FetchDailyBars returns the instrument's daily bars in [start, end].
func (c *PolygonClient) FetchDailyBars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     instrument,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000).WithOrder(models.Asc)

	iter := c.client.ListAggs(ctx, params)

	var bars []types.Bar

	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, types.Bar{
			Date:   normalizeDate(time.Time(agg.Timestamp)),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if iter.Err() != nil {
		return nil, errors.Wrapf(errors.ErrCodeProviderFetchFailed, iter.Err(),
			"failed to fetch polygon aggregates for %s", instrument)
	}

	return bars, nil
}
