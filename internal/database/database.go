package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by every operation on a closed catalog.
var ErrClosed = errors.New("catalog: database is closed")

// Database is a connection to the extraction catalog, a SQLite database that
// records every bundle the tool has opened and the entries of its manifest.
type Database struct {
	db        *sql.DB
	path      string
	queryOnly bool
}

// DatabaseOptions configures how the catalog is opened
type DatabaseOptions struct {
	// Path to the SQLite database file
	Path string

	// WALMode lets catalog readers run while an extract records a manifest
	WALMode bool

	// ForeignKeys enforces entries -> bundles and its cascading delete
	ForeignKeys bool

	// BusyTimeout sets the timeout for locked database operations
	BusyTimeout time.Duration

	// QueryOnly rejects every write, for running user supplied SQL. The
	// schema is checked but never created.
	QueryOnly bool
}

// DefaultDatabaseOptions returns the options used by the CLI
func DefaultDatabaseOptions(path string) *DatabaseOptions {
	return &DatabaseOptions{
		Path:        path,
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 30 * time.Second,
	}
}

// NewDatabase opens the catalog at options.Path, creating the file and its
// schema on first use
func NewDatabase(options *DatabaseOptions) (*Database, error) {
	if options == nil {
		return nil, fmt.Errorf("database options cannot be nil")
	}

	if options.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := ensureDirectory(options.Path); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", buildConnectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", options.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing catalog connection: %w", err)
	}

	database := &Database{
		db:        db,
		path:      options.Path,
		queryOnly: options.QueryOnly,
	}

	if options.QueryOnly {
		err = database.checkSchema(context.Background())
	} else {
		err = database.migrate(context.Background())
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing catalog schema: %w", err)
	}

	slog.Debug("Opened catalog", "path", options.Path, "query_only", options.QueryOnly)
	return database, nil
}

// Close closes the catalog. Closing twice is a no-op.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil

	if err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction with the given options
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if d.db == nil {
		return nil, ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	return tx, nil
}

// Exec executes a SQL statement that doesn't return rows
func (d *Database) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if d.db == nil {
		return nil, ErrClosed
	}

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}

	return result, nil
}

// Query executes a SQL query that returns rows
func (d *Database) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if d.db == nil {
		return nil, ErrClosed
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	return rows, nil
}

// QueryRow executes a SQL query that is expected to return at most one row
func (d *Database) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Path returns the catalog file path
func (d *Database) Path() string {
	return d.path
}

// QueryOnly reports whether writes are rejected
func (d *Database) QueryOnly() bool {
	return d.queryOnly
}

// buildConnectionString constructs the go-sqlite3 DSN. Underscore parameters
// are applied as pragmas on every new connection.
func buildConnectionString(options *DatabaseOptions) string {
	var params []string

	// Switching the journal mode is a write
	if options.WALMode && !options.QueryOnly {
		params = append(params, "_journal_mode=WAL")
	}

	if options.ForeignKeys {
		params = append(params, "_foreign_keys=on")
	}

	if options.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", int(options.BusyTimeout.Milliseconds())))
	}

	params = append(params, "_synchronous=NORMAL")

	if options.QueryOnly {
		params = append(params, "_query_only=true")
	}

	return "file:" + options.Path + "?" + strings.Join(params, "&")
}

// ensureDirectory creates the directory for the catalog file if it doesn't exist
func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}

	return os.MkdirAll(dir, 0755)
}
