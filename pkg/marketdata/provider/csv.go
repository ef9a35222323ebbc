package provider

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// CSVClient reads daily bars from local CSV files, one file per instrument at
// {dir}/{instrument}.csv with a date,open,high,low,close,volume header.
type CSVClient struct {
	dir string
}

// Compile-time interface check.
var _ Provider = (*CSVClient)(nil)

// NewCSVClient creates a CSV file provider rooted at dir.
func NewCSVClient(dir string) (*CSVClient, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "csv data directory is required")
	}

	return &CSVClient{dir: dir}, nil
}

// Name returns the provider type.
func (c *CSVClient) Name() ProviderType {
	return ProviderCSV
}

// FetchDailyBars returns the instrument's daily bars in [start, end].
func (c *CSVClient) FetchDailyBars(_ context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	path := filepath.Join(c.dir, instrument+".csv")

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"failed to open csv data for %s", instrument)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 6

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"failed to read csv data for %s", instrument)
	}

	if len(records) == 0 {
		return nil, nil
	}

	// Skip the header row if present.
	if _, headerErr := time.Parse(time.DateOnly, records[0][0]); headerErr != nil {
		records = records[1:]
	}

	rangeStart := normalizeDate(start)
	rangeEnd := normalizeDate(end)

	var bars []types.Bar

	for _, record := range records {
		bar, err := recordToBar(instrument, record)
		if err != nil {
			return nil, err
		}

		if bar.Date.Before(rangeStart) || bar.Date.After(rangeEnd) {
			continue
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

func recordToBar(instrument string, record []string) (types.Bar, error) {
	date, err := time.Parse(time.DateOnly, record[0])
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
			"malformed date %q for %s", record[0], instrument)
	}

	fields := make([]float64, 5)

	for idx := range fields {
		value, err := strconv.ParseFloat(record[idx+1], 64)
		if err != nil {
			return types.Bar{}, errors.Wrapf(errors.ErrCodeProviderFetchFailed, err,
				"malformed numeric field %q for %s", record[idx+1], instrument)
		}

		fields[idx] = value
	}

	return types.Bar{
		Date:   normalizeDate(date),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
