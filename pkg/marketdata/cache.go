package marketdata

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// BarCache persists fetched daily bars in an embedded DuckDB file so repeated
// runs against the same window hit the network once. Re-inserting a bar for
// an (instrument, date) already cached is a no-op.
type BarCache struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// NewBarCache opens (or creates) the bar cache at the given path. Pass
// ":memory:" for an ephemeral cache.
func NewBarCache(path string, log *logger.Logger) (*BarCache, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeCacheReadFailed, err, "failed to open bar cache at %s", path)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BarCache{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the price_bars table.
func (c *BarCache) Initialize(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS price_bars (
			instrument TEXT NOT NULL,
			bar_date TIMESTAMP NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL,
			UNIQUE (instrument, bar_date)
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMigrationFailed, "failed to create price_bars table", err)
	}

	return nil
}

// Close releases the database handle.
func (c *BarCache) Close() error {
	return c.db.Close()
}

// Put stores bars for an instrument, skipping dates already cached.
func (c *BarCache) Put(ctx context.Context, instrument string, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCacheWriteFailed, "failed to begin cache transaction", err)
	}

	for _, bar := range bars {
		query := c.sq.
			Insert("price_bars").
			Columns("instrument", "bar_date", "open", "high", "low", "close", "volume").
			Values(instrument, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
			Suffix("ON CONFLICT DO NOTHING").
			RunWith(tx)

		if _, err := query.ExecContext(ctx); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeCacheWriteFailed, err,
				"failed to cache bar for %s", instrument)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeCacheWriteFailed, "failed to commit cached bars", err)
	}

	c.log.Debug("cached bars",
		zap.String("instrument", instrument),
		zap.Int("count", len(bars)),
	)

	return nil
}

// Get returns the cached bars for an instrument in [start, end], ordered by
// date ascending.
func (c *BarCache) Get(ctx context.Context, instrument string, start, end time.Time) ([]types.Bar, error) {
	rows, err := c.sq.
		Select("bar_date", "open", "high", "low", "close", "volume").
		From("price_bars").
		Where(squirrel.Eq{"instrument": instrument}).
		Where(squirrel.GtOrEq{"bar_date": start}).
		Where(squirrel.LtOrEq{"bar_date": end}).
		OrderBy("bar_date ASC").
		RunWith(c.db).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeCacheReadFailed, err,
			"failed to read cached bars for %s", instrument)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar

		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCacheReadFailed, "failed to scan cached bar", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheReadFailed, "cached bar iteration failed", err)
	}

	return bars, nil
}

// LatestDate returns the most recent cached bar date for an instrument, or
// None when the instrument has no cached bars.
func (c *BarCache) LatestDate(ctx context.Context, instrument string) (time.Time, bool, error) {
	var latest sql.NullTime

	err := c.sq.
		Select("MAX(bar_date)").
		From("price_bars").
		Where(squirrel.Eq{"instrument": instrument}).
		RunWith(c.db).
		QueryRowContext(ctx).
		Scan(&latest)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(errors.ErrCodeCacheReadFailed, err,
			"failed to read latest cached date for %s", instrument)
	}

	if !latest.Valid {
		return time.Time{}, false, nil
	}

	return latest.Time, true, nil
}
