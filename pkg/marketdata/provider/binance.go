package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

const binanceKlineLimit = 1000

// BinanceClient fetches daily klines from Binance spot markets.
type BinanceClient struct {
	client *binance.Client
}

// Compile-time interface check.
var _ Provider = (*BinanceClient)(nil)

// NewBinanceClient creates a Binance provider. Public kline endpoints do not
// require credentials, so empty keys are accepted.
func NewBinanceClient(apiKey, secretKey string) *BinanceClient {
	return &BinanceClient{
		client: binance.NewClient(apiKey, secretKey),
	}
}

// Name returns the provider type.
func (c *BinanceClient) Name() ProviderType {
	return ProviderBinance
}

// FetchDailyBars returns the instrument's daily bars in [start, end]. Binance
// caps each kline request at 1000 rows, so the range is paged through until
// the endpoint stops advancing.
func (c *BinanceClient) FetchDailyBars(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	var bars []types.Bar

	cursor := start.UnixMilli()
	endMilli := end.UnixMilli()

	for cursor <= endMilli {
		klines, err := c.client.NewKlinesService().
			Symbol(instrument).
			Interval("1d").
			StartTime(cursor).
			EndTime(endMilli).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
				"failed to fetch binance klines for %s", instrument)
		}

		if len(klines) == 0 {
			break
		}

		for _, kline := range klines {
			bar, err := klineToBar(instrument, kline)
			if err != nil {
				return nil, err
			}

			bars = append(bars, bar)
		}

		next := klines[len(klines)-1].CloseTime + 1
		if next <= cursor {
			break
		}

		cursor = next
	}

	return bars, nil
}

// klineToBar converts one Binance kline. Binance serializes prices as strings.
func klineToBar(instrument string, kline *binance.Kline) (types.Bar, error) {
	open, err := strconv.ParseFloat(kline.Open, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"malformed open price for %s", instrument)
	}

	high, err := strconv.ParseFloat(kline.High, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"malformed high price for %s", instrument)
	}

	low, err := strconv.ParseFloat(kline.Low, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"malformed low price for %s", instrument)
	}

	closePrice, err := strconv.ParseFloat(kline.Close, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"malformed close price for %s", instrument)
	}

	volume, err := strconv.ParseFloat(kline.Volume, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"malformed volume for %s", instrument)
	}

	return types.Bar{
		Date:   normalizeDate(time.UnixMilli(kline.OpenTime)),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}
