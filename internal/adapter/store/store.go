package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rohan-chari/tempo-backend/internal/port"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the query surface shared by Store (autocommit) and Tx.
type conn struct {
	q       querier
	dialect dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.rebind(query), args...)
}

// Store handles all relational database operations for users, events, contacts and audit logs.
type Store struct {
	conn
	db *sql.DB
}

// Tx is a store bound to one open transaction.
type Tx struct {
	conn
	tx *sql.Tx
}

func newStore(db *sql.DB, d dialect) *Store {
	return &Store{conn: conn{q: db, dialect: d}, db: db}
}

// Open picks the backend by driver name ("postgres" or "sqlite").
func Open(driver, databaseURL string) (*Store, error) {
	switch driver {
	case "postgres":
		return NewPostgresStore(databaseURL)
	case "sqlite":
		return NewSQLiteStore(databaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the backend name.
func (s *Store) Dialect() string {
	return s.dialect.name
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect.name, err)
	}
	return nil
}

// WithTx runs fn inside one transaction. Any error or panic from fn rolls back
// everything fn wrote; otherwise the transaction is committed.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&Tx{conn: conn{q: sqlTx, dialect: s.dialect}, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	committed = true
	return nil
}

// LockOwner blocks until no other transaction holds the owner's sync lock.
func (t *Tx) LockOwner(ctx context.Context, ownerID int64) error {
	if err := t.dialect.lockOwner(ctx, t.tx, ownerID); err != nil {
		return storageErr("lock owner", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return &port.StorageError{Op: op, Err: err}
}

type scanner interface {
	Scan(dest ...any) error
}
