package duck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/duckdb/duckdb-go/v2"
)

// ErrReadOnly is returned by ExecContext once the database has been frozen.
var ErrReadOnly = errors.New("database is read-only")

type DB interface {
	Catalog() string
	Schema() string
	Close() error
	Conn(ctx context.Context) (Connection, error)
	// Freeze turns off file and network access in the engine, locks its
	// configuration and rejects every subsequent ExecContext on connections
	// of this DB.
	Freeze(ctx context.Context) error
}

type Connection interface {
	DB() DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

type duckDB struct {
	log     *slog.Logger
	db      *sql.DB
	catalog string
	schema  string
	frozen  atomic.Bool
}

type duckDBConn struct {
	conn *sql.Conn
	db   *duckDB
}

// NewDB opens a DuckDB database. An empty path or ":memory:" opens an
// in-memory database shared by every pooled connection.
func NewDB(ctx context.Context, dbPath string, log *slog.Logger) (*duckDB, error) {
	if dbPath == ":memory:" {
		dbPath = ""
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	row := db.QueryRowContext(ctx, "SELECT current_database() AS catalog, current_schema() AS schema")
	var catalog, schema string
	if err := row.Scan(&catalog, &schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get current database and schema: %w", err)
	}

	log.Debug("duck: opened database", "path", dbPath, "catalog", catalog, "schema", schema)

	return &duckDB{
		log:     log,
		db:      db,
		catalog: catalog,
		schema:  schema,
	}, nil
}

// Wrap adapts an already opened *sql.DB. It is used with drivers other than
// duckdb in tests.
func Wrap(db *sql.DB, catalog, schema string, log *slog.Logger) *duckDB {
	return &duckDB{
		log:     log,
		db:      db,
		catalog: catalog,
		schema:  schema,
	}
}

func (d *duckDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "USE "+d.catalog); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to use database: %w", err)
	}

	return &duckDBConn{
		conn: conn,
		db:   d,
	}, nil
}

func (d *duckDB) Catalog() string {
	return d.catalog
}

func (d *duckDB) Schema() string {
	return d.schema
}

// freezeStatements run once, in order. The lock must come last since it also
// blocks the first setting from being changed.
var freezeStatements = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

func (d *duckDB) Freeze(ctx context.Context) error {
	if !d.frozen.CompareAndSwap(false, true) {
		return nil
	}
	for _, stmt := range freezeStatements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to freeze database: %w", err)
		}
	}
	d.log.Info("duck: database frozen, writes and external access disabled")
	return nil
}

func (d *duckDB) Close() error {
	return d.db.Close()
}

func (c *duckDBConn) DB() DB {
	return c.db
}

func (c *duckDBConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.db.frozen.Load() {
		return nil, ErrReadOnly
	}
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *duckDBConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *duckDBConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *duckDBConn) Close() error {
	return c.conn.Close()
}
