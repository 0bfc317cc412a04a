package warehouse

import (
	"fmt"
	"strings"

	"github.com/eventstar/eventstar/pkg/types"
)

// Dialect covers the SQL differences between supported databases.
type Dialect interface {
	// Name is the database/sql driver name
	Name() string

	// Placeholder returns the bind parameter for the n-th argument, 1-based
	Placeholder(n int) string

	// ColumnType maps a logical column type to the database type
	ColumnType(col types.ColumnDef) string

	// MaxParams bounds the bind parameters of one statement
	MaxParams() int
}

// Driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DialectFor returns the dialect of a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return SQLite{}, nil
	case DriverPostgres:
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("warehouse: unsupported driver %q (must be sqlite3 or postgres)", driver)
	}
}

// SQLite is the dialect of github.com/mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string           { return DriverSQLite }
func (SQLite) Placeholder(int) string { return "?" }
func (SQLite) MaxParams() int         { return 999 }

func (SQLite) ColumnType(col types.ColumnDef) string {
	switch col.Type {
	case "INTEGER", "BOOLEAN":
		return "INTEGER"
	case "TIMESTAMP":
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Postgres is the dialect of github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string             { return DriverPostgres }
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (Postgres) MaxParams() int           { return 65535 }

func (Postgres) ColumnType(col types.ColumnDef) string {
	switch col.Type {
	case "INTEGER":
		return "BIGINT"
	case "BOOLEAN":
		return "BOOLEAN"
	case "TIMESTAMP":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// CreateTableSQL renders the DDL of a schema: the table followed by its
// indexes.
func CreateTableSQL(d Dialect, s types.Schema) ([]string, error) {
	if !validIdentifier(s.Name) {
		return nil, fmt.Errorf("warehouse: invalid table name %q", s.Name)
	}

	defs := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		if !validIdentifier(col.Name) {
			return nil, fmt.Errorf("warehouse: invalid column name %q in %s", col.Name, s.Name)
		}
		def := col.Name + " " + d.ColumnType(col)
		switch {
		case col.PrimaryKey:
			def += " PRIMARY KEY"
		case !col.Nullable:
			def += " NOT NULL"
		}
		if col.References != "" {
			def += " REFERENCES " + col.References + "(id)"
		}
		defs = append(defs, def)
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.Name, strings.Join(defs, ",\n\t")),
	}
	for _, idx := range s.Indexes {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s(%s)",
			unique, idx.Name, s.Name, strings.Join(idx.Columns, ", ")))
	}
	return stmts, nil
}

// insertSQL renders a multi-row INSERT for rowCount rows.
func insertSQL(d Dialect, table string, columns []string, rowCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	n := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
