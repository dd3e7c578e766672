// Package templates holds the SQL text the grader issues against the
// catalog of each supported engine. Submission and schema SQL never
// lives here; only the statements the schema manager needs to sweep
// and inspect the target schema.
package templates

type Dialect struct {
	// ListTables returns one table name per row for the connected schema.
	ListTables string

	// DropTable is a format string with a single %s for the table name.
	DropTable string
}

const (
	listTablesOracle   = `SELECT table_name FROM user_tables`
	listTablesPostgres = `SELECT tablename FROM pg_tables WHERE schemaname = 'public'`
	listTablesSQLite   = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`

	dropTableOracle   = `DROP TABLE "%s" PURGE`
	dropTablePostgres = `DROP TABLE "%s" CASCADE`
	dropTableSQLite   = `DROP TABLE "%s"`
)

var dialects = map[string]Dialect{
	"godror": {
		ListTables: listTablesOracle,
		DropTable:  dropTableOracle,
	},
	"postgres": {
		ListTables: listTablesPostgres,
		DropTable:  dropTablePostgres,
	},
	"sqlite3": {
		ListTables: listTablesSQLite,
		DropTable:  dropTableSQLite,
	},
}

// ForDriver returns the dialect for a database/sql driver name.
func ForDriver(driver string) (Dialect, bool) {
	d, ok := dialects[driver]
	return d, ok
}
