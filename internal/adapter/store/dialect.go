package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// dialect captures the few places where Postgres and SQLite disagree.
// Queries are written with '?' placeholders and rebound per dialect.
type dialect struct {
	name     string
	numbered bool // $1, $2, ... instead of ?
	schema   string

	isUniqueViolation func(err error) bool
	lockOwner         func(ctx context.Context, tx *sql.Tx, ownerID int64) error
}

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
