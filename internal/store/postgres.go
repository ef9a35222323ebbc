package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// PostgreSQL unique constraint violation.
const pgErrUniqueViolation = "23505"

// PostgresStore is the shared-database Store backend for deployments where
// several hosts read the same strategy history.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string, log *logger.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to parse postgres dsn", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to connect to postgres", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to ping postgres", err)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &PostgresStore{pool: pool, log: log}, nil
}

// Initialize creates the strategies and positions tables.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS strategies (
			instrument TEXT NOT NULL,
			run_timestamp TIMESTAMPTZ NOT NULL,
			rule_stack TEXT NOT NULL,
			edge_score DOUBLE PRECISION NOT NULL,
			win_pct DOUBLE PRECISION NOT NULL,
			sharpe DOUBLE PRECISION NOT NULL,
			total_trades INTEGER NOT NULL,
			avg_return DOUBLE PRECISION NOT NULL,
			UNIQUE (instrument, rule_stack, run_timestamp)
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMigrationFailed, "failed to create strategies table", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			position_id TEXT PRIMARY KEY,
			instrument TEXT NOT NULL,
			entry_date TIMESTAMPTZ NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_date TIMESTAMPTZ,
			exit_price DOUBLE PRECISION,
			status TEXT NOT NULL,
			rule_stack TEXT NOT NULL,
			final_return_pct DOUBLE PRECISION,
			days_held INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMigrationFailed, "failed to create positions table", err)
	}

	// Enforce at most one OPEN position per instrument at the schema level.
	_, err = s.pool.Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS positions_one_open_per_instrument
		ON positions (instrument) WHERE status = 'OPEN'
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMigrationFailed, "failed to create open-position index", err)
	}

	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()

	return nil
}

// InsertStrategies appends strategy rows in one transaction. Duplicate keys
// are skipped via ON CONFLICT DO NOTHING.
func (s *PostgresStore) InsertStrategies(ctx context.Context, results []types.StrategyResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO strategies (
			instrument, run_timestamp, rule_stack,
			edge_score, win_pct, sharpe, total_trades, avg_return
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`

	for _, result := range results {
		snapshot, err := result.RuleStack.Snapshot()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, query,
			result.Instrument, result.RunTimestamp, snapshot,
			result.EdgeScore, result.WinPct, result.Sharpe, result.TotalTrades, result.AvgReturn,
		); err != nil {
			return errors.Wrapf(errors.ErrCodeInsertFailed, err,
				"failed to insert strategy for %s", result.Instrument)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to commit strategies", err)
	}

	s.log.Debug("inserted strategy rows", zap.Int("count", len(results)))

	return nil
}

// ListStrategies returns strategy rows matching the filter, newest run first.
func (s *PostgresStore) ListStrategies(ctx context.Context, filter StrategyFilter) ([]types.StrategyResult, error) {
	query := `
		SELECT instrument, run_timestamp, rule_stack,
		       edge_score, win_pct, sharpe, total_trades, avg_return
		FROM strategies
		WHERE ($1::TEXT IS NULL OR instrument = $1)
		  AND ($2::TIMESTAMPTZ IS NULL OR run_timestamp >= $2)
		ORDER BY run_timestamp DESC, instrument ASC, edge_score DESC
	`

	rows, err := s.pool.Query(ctx, query, textArg(filter.Instrument), timeArg(filter.Since))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query strategies", err)
	}
	defer rows.Close()

	var results []types.StrategyResult

	for rows.Next() {
		var result types.StrategyResult

		var snapshot string

		if err := rows.Scan(&result.Instrument, &result.RunTimestamp, &snapshot,
			&result.EdgeScore, &result.WinPct, &result.Sharpe, &result.TotalTrades, &result.AvgReturn); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan strategy row", err)
		}

		stack, err := types.RuleStackFromSnapshot(snapshot)
		if err != nil {
			return nil, err
		}

		result.RuleStack = stack
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "strategy row iteration failed", err)
	}

	return results, nil
}

// OpenPosition creates a new OPEN position. The partial unique index turns a
// concurrent duplicate into a constraint violation.
func (s *PostgresStore) OpenPosition(ctx context.Context, position types.Position) error {
	snapshot, err := position.RuleStackUsed.Snapshot()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO positions (
			position_id, instrument, entry_date, entry_price,
			status, rule_stack, days_held
		) VALUES ($1, $2, $3, $4, $5, $6, 0)
	`

	_, err = s.pool.Exec(ctx, query,
		position.ID, position.Instrument, position.EntryDate, position.EntryPrice,
		string(types.PositionStatusOpen), snapshot,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Newf(errors.ErrCodeDuplicateOpenPosition,
				"instrument %s already has an open position", position.Instrument)
		}

		return errors.Wrapf(errors.ErrCodeInsertFailed, err,
			"failed to insert position for %s", position.Instrument)
	}

	s.log.Debug("opened position",
		zap.String("instrument", position.Instrument),
		zap.String("position_id", position.ID),
	)

	return nil
}

// ClosePosition transitions one OPEN position to CLOSED atomically.
func (s *PostgresStore) ClosePosition(ctx context.Context, close PositionClose) error {
	query := `
		UPDATE positions
		SET status = $1, exit_date = $2, exit_price = $3,
		    final_return_pct = $4, days_held = $5
		WHERE position_id = $6 AND status = $7
	`

	tag, err := s.pool.Exec(ctx, query,
		string(types.PositionStatusClosed), close.ExitDate, close.ExitPrice,
		close.FinalReturnPct, close.DaysHeld, close.PositionID, string(types.PositionStatusOpen),
	)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to close position %s", close.PositionID)
	}

	if tag.RowsAffected() == 0 {
		var count int
		if err := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM positions WHERE position_id = $1`, close.PositionID,
		).Scan(&count); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to look up position", err)
		}

		if count == 0 {
			return errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", close.PositionID)
		}

		return errors.Newf(errors.ErrCodePositionNotOpen, "position %s is not open", close.PositionID)
	}

	s.log.Debug("closed position", zap.String("position_id", close.PositionID))

	return nil
}

// GetOpenPositions returns every OPEN position.
func (s *PostgresStore) GetOpenPositions(ctx context.Context) ([]types.Position, error) {
	return s.ListPositions(ctx, PositionFilter{
		Instrument: nil,
		Status:     optional.Some(types.PositionStatusOpen),
	})
}

// ListPositions returns positions matching the filter, newest entry first.
func (s *PostgresStore) ListPositions(ctx context.Context, filter PositionFilter) ([]types.Position, error) {
	query := `
		SELECT position_id, instrument, entry_date, entry_price, exit_date, exit_price,
		       status, rule_stack, final_return_pct, days_held
		FROM positions
		WHERE ($1::TEXT IS NULL OR instrument = $1)
		  AND ($2::TEXT IS NULL OR status = $2)
		ORDER BY entry_date DESC, instrument ASC
	`

	var statusArg *string

	if filter.Status.IsSome() {
		value := string(filter.Status.Unwrap())
		statusArg = &value
	}

	rows, err := s.pool.Query(ctx, query, textArg(filter.Instrument), statusArg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query positions", err)
	}
	defer rows.Close()

	var positions []types.Position

	for rows.Next() {
		position, err := scanPgPosition(rows)
		if err != nil {
			return nil, err
		}

		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "position row iteration failed", err)
	}

	return positions, nil
}

// HasOpenPosition reports whether the instrument has an OPEN position.
func (s *PostgresStore) HasOpenPosition(ctx context.Context, instrument string) (bool, error) {
	var count int

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE instrument = $1 AND status = $2`,
		instrument, string(types.PositionStatusOpen),
	).Scan(&count)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count open positions", err)
	}

	return count > 0, nil
}

func scanPgPosition(rows pgx.Rows) (types.Position, error) {
	var position types.Position

	var (
		snapshot    string
		status      string
		exitDate    *time.Time
		exitPrice   *float64
		finalReturn *float64
	)

	if err := rows.Scan(&position.ID, &position.Instrument, &position.EntryDate, &position.EntryPrice,
		&exitDate, &exitPrice, &status, &snapshot, &finalReturn, &position.DaysHeld); err != nil {
		return types.Position{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan position row", err)
	}

	stack, err := types.RuleStackFromSnapshot(snapshot)
	if err != nil {
		return types.Position{}, err
	}

	position.Status = types.PositionStatus(status)
	position.RuleStackUsed = stack
	position.ExitDate = optional.FromNillable(exitDate)
	position.ExitPrice = optional.FromNillable(exitPrice)
	position.FinalReturnPct = optional.FromNillable(finalReturn)

	return position, nil
}

func textArg(value optional.Option[string]) *string {
	if value.IsNone() {
		return nil
	}

	v := value.Unwrap()

	return &v
}

func timeArg(value optional.Option[time.Time]) *time.Time {
	if value.IsNone() {
		return nil
	}

	v := value.Unwrap()

	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}
