package grader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbslab/labgrader/templates"
)

// InfraError marks a shared-resource failure (schema reset, connectivity).
// Unlike a query failure it aborts the current student's whole evaluation.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure error: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// SchemaManager owns the target schema. It is the only component allowed
// to issue DDL against it; everything else sees the schema through the
// query runner only.
type SchemaManager struct {
	logger  *zap.Logger
	db      *sqlx.DB
	dialect templates.Dialect
	script  []string
}

func NewSchemaManager(logger *zap.Logger, db *sqlx.DB, driverName, scriptPath string) (*SchemaManager, error) {
	dialect, ok := templates.ForDriver(driverName)
	if !ok {
		return nil, fmt.Errorf("no schema dialect for driver %q", driverName)
	}

	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read schema script: %w", err)
	}
	script := splitStatements(string(data))
	if len(script) == 0 {
		return nil, fmt.Errorf("schema script %s contains no statements", scriptPath)
	}

	return &SchemaManager{
		logger:  logger,
		db:      db,
		dialect: dialect,
		script:  script,
	}, nil
}

// Reset drops every table in the schema and replays the schema script,
// leaving byte-identical starting data for the next evaluation. Calling it
// on an already-clean schema is a no-op sweep followed by a normal replay.
func (m *SchemaManager) Reset(ctx context.Context) error {
	if err := m.dropAllTables(ctx); err != nil {
		return &InfraError{Op: "drop tables", Err: err}
	}
	for _, stmt := range m.script {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return &InfraError{Op: "replay schema script", Err: err}
		}
	}

	m.logger.Debug("schema reset complete", zap.Int("statement_count", len(m.script)))

	return nil
}

// dropAllTables sweeps the catalog. A drop can fail transiently on
// referential constraints depending on drop order, so failed tables get
// one more sweep before the failure is treated as fatal.
func (m *SchemaManager) dropAllTables(ctx context.Context) error {
	var tables []string
	if err := m.db.SelectContext(ctx, &tables, m.dialect.ListTables); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	retry := tables
	for attempt := 0; attempt < 2 && len(retry) > 0; attempt++ {
		var failed []string
		var lastErr error
		for _, table := range retry {
			stmt := fmt.Sprintf(m.dialect.DropTable, table)
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				failed = append(failed, table)
				lastErr = err
			}
		}
		if len(failed) > 0 && attempt == 1 {
			return fmt.Errorf("drop %s: %w", strings.Join(failed, ", "), lastErr)
		}
		retry = failed
	}

	return nil
}

func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
