package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/moznion/go-optional"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// DuckDBStore is the default Store backend, backed by an embedded DuckDB
// database. Pass ":memory:" as the path for an ephemeral store.
type DuckDBStore struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// Compile-time interface check.
var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore opens (or creates) a DuckDB database at the given path.
func NewDuckDBStore(path string, log *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to open duckdb at %s", path)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &DuckDBStore{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the strategies and positions tables.
func (s *DuckDBStore) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS strategies (
			instrument TEXT NOT NULL,
			run_timestamp TIMESTAMP NOT NULL,
			rule_stack TEXT NOT NULL,
			edge_score DOUBLE NOT NULL,
			win_pct DOUBLE NOT NULL,
			sharpe DOUBLE NOT NULL,
			total_trades INTEGER NOT NULL,
			avg_return DOUBLE NOT NULL,
			UNIQUE (instrument, rule_stack, run_timestamp)
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMigrationFailed, "failed to create strategies table", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			position_id TEXT PRIMARY KEY,
			instrument TEXT NOT NULL,
			entry_date TIMESTAMP NOT NULL,
			entry_price DOUBLE NOT NULL,
			exit_date TIMESTAMP,
			exit_price DOUBLE,
			status TEXT NOT NULL,
			rule_stack TEXT NOT NULL,
			final_return_pct DOUBLE,
			days_held INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMigrationFailed, "failed to create positions table", err)
	}

	return nil
}

// Close releases the database handle.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// InsertStrategies appends strategy rows in one transaction. Existing
// (instrument, rule_stack, run_timestamp) keys are skipped, keeping frozen
// re-runs idempotent.
func (s *DuckDBStore) InsertStrategies(ctx context.Context, results []types.StrategyResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to begin transaction", err)
	}

	for _, result := range results {
		snapshot, err := result.RuleStack.Snapshot()
		if err != nil {
			tx.Rollback()

			return err
		}

		query := s.sq.
			Insert("strategies").
			Columns("instrument", "run_timestamp", "rule_stack", "edge_score", "win_pct", "sharpe", "total_trades", "avg_return").
			Values(result.Instrument, result.RunTimestamp, snapshot, result.EdgeScore, result.WinPct, result.Sharpe, result.TotalTrades, result.AvgReturn).
			Suffix("ON CONFLICT DO NOTHING").
			RunWith(tx)

		if _, err := query.ExecContext(ctx); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeInsertFailed, err,
				"failed to insert strategy for %s", result.Instrument)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to commit strategies", err)
	}

	s.log.Debug("inserted strategy rows", zap.Int("count", len(results)))

	return nil
}

// ListStrategies returns strategy rows matching the filter, newest run first.
func (s *DuckDBStore) ListStrategies(ctx context.Context, filter StrategyFilter) ([]types.StrategyResult, error) {
	query := s.sq.
		Select("instrument", "run_timestamp", "rule_stack", "edge_score", "win_pct", "sharpe", "total_trades", "avg_return").
		From("strategies").
		OrderBy("run_timestamp DESC", "instrument ASC", "edge_score DESC")

	if filter.Instrument.IsSome() {
		query = query.Where(squirrel.Eq{"instrument": filter.Instrument.Unwrap()})
	}

	if filter.Since.IsSome() {
		query = query.Where(squirrel.GtOrEq{"run_timestamp": filter.Since.Unwrap()})
	}

	rows, err := query.RunWith(s.db).QueryContext(ctx)
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

// OpenPosition creates a new OPEN position inside a transaction, guarding
// against a duplicate OPEN position for the same instrument.
func (s *DuckDBStore) OpenPosition(ctx context.Context, position types.Position) error {
	snapshot, err := position.RuleStackUsed.Snapshot()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to begin transaction", err)
	}

	var open int
	if err := s.sq.
		Select("COUNT(*)").
		From("positions").
		Where(squirrel.Eq{"instrument": position.Instrument, "status": string(types.PositionStatusOpen)}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&open); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to check open positions", err)
	}

	if open > 0 {
		tx.Rollback()

		return errors.Newf(errors.ErrCodeDuplicateOpenPosition,
			"instrument %s already has an open position", position.Instrument)
	}

	query := s.sq.
		Insert("positions").
		Columns("position_id", "instrument", "entry_date", "entry_price", "status", "rule_stack", "days_held").
		Values(position.ID, position.Instrument, position.EntryDate, position.EntryPrice,
			string(types.PositionStatusOpen), snapshot, 0).
		RunWith(tx)

	if _, err := query.ExecContext(ctx); err != nil {
		tx.Rollback()

		return errors.Wrapf(errors.ErrCodeInsertFailed, err,
			"failed to insert position for %s", position.Instrument)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeTransactionFailed, "failed to commit position", err)
	}

	s.log.Debug("opened position",
		zap.String("instrument", position.Instrument),
		zap.String("position_id", position.ID),
	)

	return nil
}

// ClosePosition transitions one OPEN position to CLOSED. The exit fields and
// the status change land in a single UPDATE, so they are atomic.
func (s *DuckDBStore) ClosePosition(ctx context.Context, close PositionClose) error {
	query := s.sq.
		Update("positions").
		Set("status", string(types.PositionStatusClosed)).
		Set("exit_date", close.ExitDate).
		Set("exit_price", close.ExitPrice).
		Set("final_return_pct", close.FinalReturnPct).
		Set("days_held", close.DaysHeld).
		Where(squirrel.Eq{
			"position_id": close.PositionID,
			"status":      string(types.PositionStatusOpen),
		}).
		RunWith(s.db)

	result, err := query.ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err,
			"failed to close position %s", close.PositionID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to read close result", err)
	}

	if affected == 0 {
		var count int
		if err := s.sq.
			Select("COUNT(*)").
			From("positions").
			Where(squirrel.Eq{"position_id": close.PositionID}).
			RunWith(s.db).
			QueryRowContext(ctx).
			Scan(&count); err != nil {
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
func (s *DuckDBStore) GetOpenPositions(ctx context.Context) ([]types.Position, error) {
	return s.ListPositions(ctx, PositionFilter{
		Instrument: nil,
		Status:     optional.Some(types.PositionStatusOpen),
	})
}

// ListPositions returns positions matching the filter, newest entry first.
func (s *DuckDBStore) ListPositions(ctx context.Context, filter PositionFilter) ([]types.Position, error) {
	query := s.sq.
		Select("position_id", "instrument", "entry_date", "entry_price", "exit_date", "exit_price",
			"status", "rule_stack", "final_return_pct", "days_held").
		From("positions").
		OrderBy("entry_date DESC", "instrument ASC")

	if filter.Instrument.IsSome() {
		query = query.Where(squirrel.Eq{"instrument": filter.Instrument.Unwrap()})
	}

	if filter.Status.IsSome() {
		query = query.Where(squirrel.Eq{"status": string(filter.Status.Unwrap())})
	}

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query positions", err)
	}
	defer rows.Close()

	var positions []types.Position

	for rows.Next() {
		position, err := scanPosition(rows)
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
func (s *DuckDBStore) HasOpenPosition(ctx context.Context, instrument string) (bool, error) {
	var count int

	err := s.sq.
		Select("COUNT(*)").
		From("positions").
		Where(squirrel.Eq{"instrument": instrument, "status": string(types.PositionStatusOpen)}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count open positions", err)
	}

	return count > 0, nil
}

func scanPosition(rows *sql.Rows) (types.Position, error) {
	var position types.Position

	var (
		snapshot    string
		status      string
		exitDate    sql.NullTime
		exitPrice   sql.NullFloat64
		finalReturn sql.NullFloat64
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

	if exitDate.Valid {
		position.ExitDate = optional.Some(exitDate.Time)
	}

	if exitPrice.Valid {
		position.ExitPrice = optional.Some(exitPrice.Float64)
	}

	if finalReturn.Valid {
		position.FinalReturnPct = optional.Some(finalReturn.Float64)
	}

	return position, nil
}
