package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

const userColumns = `id, subject, email, display_name, photo_url, email_verified, created_at, updated_at`

// GetUserBySubject retrieves a user by external identity subject.
func (c conn) GetUserBySubject(ctx context.Context, subject string) (*domain.User, error) {
	row := c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE subject = ?`, subject)
	return scanUserRow(row, "get user by subject")
}

// GetUserByID retrieves a user by internal ID.
func (c conn) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUserRow(row, "get user")
}

// InsertUser creates a user row. A concurrent insert of the same subject
// surfaces as port.ErrDuplicate.
func (c conn) InsertUser(ctx context.Context, p domain.ExternalProfile, now time.Time) (*domain.User, error) {
	query := `
		INSERT INTO users (subject, email, display_name, photo_url, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns

	now = now.UTC()
	row := c.queryRow(ctx, query,
		p.Subject, p.Email, p.DisplayName, p.PhotoURL, p.EmailVerified, now, now,
	)
	u, err := scanUser(row)
	if err != nil {
		if c.dialect.isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %s: %w", p.Subject, port.ErrDuplicate)
		}
		return nil, storageErr("insert user", err)
	}
	return u, nil
}

// UpdateUserProfile overwrites the provider-owned profile fields of an existing user.
func (c conn) UpdateUserProfile(ctx context.Context, p domain.ExternalProfile, now time.Time) (*domain.User, error) {
	query := `
		UPDATE users SET
			email = ?,
			display_name = ?,
			photo_url = ?,
			email_verified = ?,
			updated_at = ?
		WHERE subject = ?
		RETURNING ` + userColumns

	row := c.queryRow(ctx, query,
		p.Email, p.DisplayName, p.PhotoURL, p.EmailVerified, now.UTC(), p.Subject,
	)
	return scanUserRow(row, "update user")
}

// DeleteUser removes a user; their events and contacts cascade.
func (c conn) DeleteUser(ctx context.Context, id int64) error {
	res, err := c.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrUserNotFound
	}
	return nil
}

func scanUserRow(row scanner, op string) (*domain.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return u, nil
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Subject, &u.Email, &u.DisplayName, &u.PhotoURL,
		&u.EmailVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
