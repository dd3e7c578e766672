package grader

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const timeoutMessage = "timeout"

// ResultSet is a fully materialized query result: column names in
// driver-reported order plus the row tuples in fetch order. Row order
// carries no meaning for comparison. Immutable after creation.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// QueryOutcome is the result of running one question: either a ResultSet
// or the engine's error text. An execution error is a normal grading
// outcome, not a Go error.
type QueryOutcome struct {
	Result *ResultSet
	Err    string
}

func (o QueryOutcome) Failed() bool {
	return o.Err != ""
}

// Runner executes single statements against the live schema generation.
type Runner struct {
	logger  *zap.Logger
	db      *sqlx.DB
	timeout time.Duration
}

func NewRunner(logger *zap.Logger, db *sqlx.DB, timeout time.Duration) *Runner {
	return &Runner{
		logger:  logger,
		db:      db,
		timeout: timeout,
	}
}

// Execute runs exactly one statement with a bounded timeout and fetches the
// full result set eagerly; the schema may be reset right after, so no lazy
// cursors may survive this call.
func (r *Runner) Execute(ctx context.Context, statement string) QueryOutcome {
	statement = prepareStatement(statement)

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, statement)
	if err != nil {
		return r.failedOutcome(queryCtx, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := materializeRows(rows)
	if err != nil {
		return r.failedOutcome(queryCtx, err)
	}

	return QueryOutcome{Result: result}
}

func (r *Runner) failedOutcome(ctx context.Context, err error) QueryOutcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("query timed out", zap.Duration("timeout", r.timeout))
		return QueryOutcome{Err: timeoutMessage}
	}
	return QueryOutcome{Err: err.Error()}
}

func materializeRows(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &ResultSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
