package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name:   "sqlite",
	schema: sqliteSchema,
	isUniqueViolation: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// Primary result code only; extended codes disabled on this connection.
			return strings.Contains(se.Error(), "UNIQUE constraint failed")
		}
		return false
	},
	// SQLite allows a single writer, and the pool below holds a single connection.
	lockOwner: func(context.Context, *sql.Tx, int64) error { return nil },
}

// NewSQLiteStore opens an embedded SQLite database, e.g. "file:tempo.db" or "file::memory:".
// Foreign keys are always enabled so event deletes cascade to contacts.
func NewSQLiteStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: in-memory databases are per-connection, and writers serialize anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newStore(db, sqliteDialect), nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
