package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Kernel owns the embedded database handle. No other component holds a raw
// connection; everything goes through the Read and Write scopes. Writes are
// serialized through a single connection and a process-wide lease; reads run
// concurrently on a separate pool, which WAL mode permits alongside the
// in-flight write.
type Kernel struct {
	writeDB *sql.DB
	readDB  *sql.DB
	writeMu sync.Mutex
	path    string
	logger  *zap.Logger
}

const dsnOptions = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

// Open opens or creates the database at path in WAL mode.
func Open(path string, logger *zap.Logger) (*Kernel, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite for writing: %w", err)
	}
	// One connection on the write side avoids SQLITE_BUSY between writers.
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening sqlite for reading: %w", err)
	}
	readDB.SetMaxOpenConns(8)

	return &Kernel{
		writeDB: writeDB,
		readDB:  readDB,
		path:    path,
		logger:  logger,
	}, nil
}

// Read runs fn under a read-only view. Multiple reads may run concurrently
// with each other and with an in-flight write.
func (k *Kernel) Read(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := k.readDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("beginning read scope: %w", err)
	}
	defer tx.Rollback()

	return fn(ctx, tx)
}

// Write runs fn under the exclusive writer lease inside a transaction whose
// commit is the last step. On any exit path the lease is released; when fn
// fails or the context is cancelled the transaction is rolled back and no
// partial state is visible.
func (k *Kernel) Write(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	tx, err := k.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write scope: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing write scope: %w", err)
	}
	return nil
}

// Health pings both handles for the database status endpoint.
func (k *Kernel) Health(ctx context.Context) error {
	if err := k.readDB.PingContext(ctx); err != nil {
		return err
	}
	return k.writeDB.PingContext(ctx)
}

// Path returns the database file location.
func (k *Kernel) Path() string {
	return k.path
}

// isUniqueViolation recognizes a UNIQUE constraint failure so repositories
// can surface it as a conflict instead of a generic storage error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Close releases both handles.
func (k *Kernel) Close() error {
	if err := k.readDB.Close(); err != nil {
		k.writeDB.Close()
		return err
	}
	return k.writeDB.Close()
}
