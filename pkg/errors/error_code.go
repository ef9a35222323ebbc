package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199). These abort a run before any backtest
	// work is performed.
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeInvalidParameter     ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102
	ErrCodeInvalidWeights       ErrorCode = 103
	ErrCodeInvalidHoldPeriod    ErrorCode = 104
	ErrCodeInvalidRuleStack     ErrorCode = 105
	ErrCodeUnknownRuleType      ErrorCode = 106
	ErrCodeInvalidVersion       ErrorCode = 107
	ErrCodeInvalidThreshold     ErrorCode = 108

	// Data errors (200-299). Scoped to a single instrument; the run skips the
	// instrument and continues with the others.
	ErrCodeDataNotFound     ErrorCode = 200
	ErrCodeInsufficientData ErrorCode = 201
	ErrCodeMalformedSeries  ErrorCode = 202
	ErrCodeNonFiniteData    ErrorCode = 203
	ErrCodeCoverageCheck    ErrorCode = 204
	ErrCodeDuplicateDates   ErrorCode = 205
	ErrCodeUnorderedDates   ErrorCode = 206

	// Rule errors (300-399)
	ErrCodeRuleNotFound          ErrorCode = 300
	ErrCodeRuleAlreadyRegistered ErrorCode = 301
	ErrCodeLookbackUndeclared    ErrorCode = 302
	ErrCodeRuleEvaluation        ErrorCode = 303

	// Optimizer errors (400-499). Also used as structured skip reasons when a
	// candidate stack is filtered out of the surviving set.
	ErrCodeBelowMinTrades   ErrorCode = 400
	ErrCodeZeroTrades       ErrorCode = 401
	ErrCodeNoCandidates     ErrorCode = 402
	ErrCodeOptimizerAborted ErrorCode = 403

	// Persistence errors (500-599). Run-level; abort the run.
	ErrCodeStoreUnavailable      ErrorCode = 500
	ErrCodeQueryFailed           ErrorCode = 501
	ErrCodeInsertFailed          ErrorCode = 502
	ErrCodeTransactionFailed     ErrorCode = 503
	ErrCodePositionNotOpen       ErrorCode = 504
	ErrCodeDuplicateOpenPosition ErrorCode = 505
	ErrCodePositionNotFound      ErrorCode = 506
	ErrCodeMigrationFailed       ErrorCode = 507

	// Simulation errors (600-699). Scoped to one instrument/stack combination.
	ErrCodeMisalignedSeries ErrorCode = 600
	ErrCodeSimulationFailed ErrorCode = 601

	// Market data errors (700-799)
	ErrCodeProviderFetchFailed ErrorCode = 700
	ErrCodeCacheWriteFailed    ErrorCode = 701
	ErrCodeCacheReadFailed     ErrorCode = 702
	ErrCodeUnsupportedProvider ErrorCode = 703
	ErrCodeEmptyFrozenRange    ErrorCode = 704
)
