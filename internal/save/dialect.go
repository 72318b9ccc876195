package save

import (
	"fmt"
	"strings"
)

// Dialect abstracts SQL syntax differences between SQLite and PostgreSQL.
type Dialect interface {
	// DriverName returns the driver name for sql.Open().
	// SQLite: "sqlite", PostgreSQL: "postgres"
	DriverName() string

	// Placeholder returns the parameter placeholder for the given position (1-indexed).
	// SQLite: "?" (ignores position), PostgreSQL: "$1", "$2", etc.
	Placeholder(position int) string

	// BlobType returns the column type for binary save blobs.
	BlobType() string

	// InitStatements returns database-specific initialization statements.
	// SQLite: PRAGMA statements, PostgreSQL: none needed.
	InitStatements() []string
}

// DialectType identifies the database dialect.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect creates a new Dialect for the given type.
func NewDialect(dialectType DialectType) Dialect {
	switch dialectType {
	case DialectPostgres:
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}

// SQLiteDialect implements Dialect for SQLite databases.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(position int) string { return "?" }

func (d *SQLiteDialect) BlobType() string { return "BLOB" }

// InitStatements returns SQLite PRAGMA statements for optimal operation.
func (d *SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
}

// PostgresDialect implements Dialect for PostgreSQL databases.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string { return "postgres" }

func (d *PostgresDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (d *PostgresDialect) BlobType() string { return "BYTEA" }

func (d *PostgresDialect) InitStatements() []string { return nil }

// rebind converts a query with ? placeholders to the dialect's format.
// SQLite queries pass through unchanged; PostgreSQL gets $1, $2, etc.
func rebind(d Dialect, query string) string {
	if _, ok := d.(*SQLiteDialect); ok {
		return query
	}

	var result strings.Builder
	position := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result.WriteString(d.Placeholder(position))
			position++
		} else {
			result.WriteByte(query[i])
		}
	}
	return result.String()
}
