package database

import (
	stdsql "database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver
)

// Client owns two *sql.DB handles to the same database file: a
// single-connection write handle serialized by WriteMu (defeating SQLite
// writer contention the way a connection-pool limit alone cannot
// guarantee ordering), and a pooled read handle for concurrent readers.
type Client struct {
	WriteMu sync.Mutex
	writeDB *stdsql.DB
	readDB  *stdsql.DB
	path    string

	// Cipher applies the unsealed DEK to sensitive text columns (see
	// cipher.go); nil when NewClient was called with no key, which every
	// store test helper does.
	Cipher *Cipher
}

// WriteDB returns the single-connection write handle. Callers must hold
// WriteMu for the duration of any write transaction.
func (c *Client) WriteDB() *stdsql.DB { return c.writeDB }

// ReadDB returns the pooled read handle.
func (c *Client) ReadDB() *stdsql.DB { return c.readDB }

// Path returns the underlying database file path.
func (c *Client) Path() string { return c.path }

func dsn(path string, busyTimeoutMs int) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path, busyTimeoutMs)
}

// NewClient opens the database at cfg.Path, ensuring its parent directory
// exists, applies pragmas, and runs embedded migrations. dek is the
// unsealed key from pkg/security.Runtime.UnsealDEK (spec.md §4.2: "apply
// the unsealed DEK"); a nil/empty dek disables the Cipher, which is what
// every store's test helper passes. The returned Client is ready for
// store construction.
func NewClient(cfg Config, dek []byte) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	dbCipher, err := NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connDSN := dsn(cfg.Path, cfg.BusyTimeoutMs)

	writeDB, err := stdsql.Open("sqlite", connDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := stdsql.Open("sqlite", connDSN)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(cfg.MaxOpenReadConns)
	readDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := writeDB.Ping(); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(writeDB, cfg.Path); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{writeDB: writeDB, readDB: readDB, path: cfg.Path, Cipher: dbCipher}, nil
}

// Close closes both underlying handles.
func (c *Client) Close() error {
	werr := c.writeDB.Close()
	rerr := c.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
