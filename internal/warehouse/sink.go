// Package warehouse loads the star schema into a relational database inside
// a single transaction per batch.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
)

// Sink opens write transactions on the target database.
type Sink interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic write to the sink. Nothing is visible to readers until
// Commit; Rollback discards every write.
type Tx interface {
	// DeleteAll removes every row of a table.
	DeleteAll(ctx context.Context, table string) error

	// BulkInsert appends rows; each row holds one value per column.
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) error

	Commit() error
	Rollback() error
}

// SQLSink implements Sink over a database/sql handle. The handle is owned
// by the caller.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLSink creates a sink over db using dialect d.
func NewSQLSink(db *sql.DB, d Dialect) *SQLSink {
	return &SQLSink{db: db, dialect: d}
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("warehouse: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("warehouse: connect %s: %w", driver, err)
	}
	return db, d, nil
}

// DB returns the underlying handle.
func (s *SQLSink) DB() *sql.DB {
	return s.db
}

// Dialect returns the sink's SQL dialect.
func (s *SQLSink) Dialect() Dialect {
	return s.dialect
}

// Begin starts a transaction.
func (s *SQLSink) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

// InitSchema creates the star schema tables and indexes if they do not
// exist yet.
func (s *SQLSink) InitSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pipelineerrors.NewSinkError(pipelineerrors.CodeSchemaInitFailed, "begin schema transaction", err)
	}
	defer tx.Rollback()

	for _, schema := range Schemas() {
		stmts, err := CreateTableSQL(s.dialect, schema)
		if err != nil {
			return pipelineerrors.NewSinkError(pipelineerrors.CodeSchemaInitFailed, "render DDL", err)
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return pipelineerrors.NewSinkError(pipelineerrors.CodeSchemaInitFailed,
					fmt.Sprintf("create %s", schema.Name), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return pipelineerrors.NewSinkError(pipelineerrors.CodeSchemaInitFailed, "commit schema", err)
	}
	return nil
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) DeleteAll(ctx context.Context, table string) error {
	if !validIdentifier(table) {
		return fmt.Errorf("warehouse: invalid table name %q", table)
	}
	_, err := t.tx.ExecContext(ctx, "DELETE FROM "+table)
	return err
}

// BulkInsert writes rows in multi-row INSERT statements sized to stay
// under the dialect's bind parameter limit.
func (t *sqlTx) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if !validIdentifier(table) {
		return fmt.Errorf("warehouse: invalid table name %q", table)
	}
	for _, c := range columns {
		if !validIdentifier(c) {
			return fmt.Errorf("warehouse: invalid column name %q", c)
		}
	}

	perStmt := max(t.dialect.MaxParams()/len(columns), 1)
	for start := 0; start < len(rows); start += perStmt {
		chunk := rows[start:min(start+perStmt, len(rows))]

		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				return fmt.Errorf("warehouse: %s row %d has %d values, want %d", table, start+i, len(row), len(columns))
			}
			args = append(args, row...)
		}

		if _, err := t.tx.ExecContext(ctx, insertSQL(t.dialect, table, columns, len(chunk)), args...); err != nil {
			return fmt.Errorf("warehouse: insert into %s: %w", table, err)
		}
	}
	return nil
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }
