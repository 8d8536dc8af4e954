package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

const eventColumns = `id, external_id, user_id, user_subject, title, start_date, end_date, is_all_day,
	notes, location, calendar_id, calendar_name, fetched_at, created_at, updated_at`

// deleteChunk bounds the number of bind parameters per IN (...) statement.
const deleteChunk = 500

// UpsertEvent inserts e or, when a row with the same (external_id, user_id)
// exists, overwrites every mutable field and bumps updated_at. It returns the
// row's internal ID, which is stable across updates.
func (c conn) UpsertEvent(ctx context.Context, e *domain.CalendarEvent, now time.Time) (int64, error) {
	query := `
		INSERT INTO calendar_events (external_id, user_id, user_subject, title, start_date, end_date, is_all_day,
			notes, location, calendar_id, calendar_name, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id, user_id) DO UPDATE SET
			user_subject = excluded.user_subject,
			title = excluded.title,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			is_all_day = excluded.is_all_day,
			notes = excluded.notes,
			location = excluded.location,
			calendar_id = excluded.calendar_id,
			calendar_name = excluded.calendar_name,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
		RETURNING id`

	now = now.UTC()
	var id int64
	err := c.queryRow(ctx, query, eventArgs(e, now)...).Scan(&id)
	if err != nil {
		return 0, storageErr("upsert event "+e.ExternalID, err)
	}
	return id, nil
}

// InsertEvent creates a new event row. An existing natural key is port.ErrEventExists.
func (c conn) InsertEvent(ctx context.Context, e *domain.CalendarEvent, now time.Time) (*domain.CalendarEvent, error) {
	query := `
		INSERT INTO calendar_events (external_id, user_id, user_subject, title, start_date, end_date, is_all_day,
			notes, location, calendar_id, calendar_name, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + eventColumns

	now = now.UTC()
	out, err := scanEvent(c.queryRow(ctx, query, eventArgs(e, now)...))
	if err != nil {
		if c.dialect.isUniqueViolation(err) {
			return nil, fmt.Errorf("insert event %s: %w", e.ExternalID, port.ErrEventExists)
		}
		return nil, storageErr("insert event", err)
	}
	return out, nil
}

// GetEvent returns one event by natural key.
func (c conn) GetEvent(ctx context.Context, userID int64, externalID string) (*domain.CalendarEvent, error) {
	row := c.queryRow(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE user_id = ? AND external_id = ?`,
		userID, externalID,
	)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrEventNotFound
	}
	if err != nil {
		return nil, storageErr("get event", err)
	}
	return e, nil
}

// ListEventsByUser returns all of a user's events ordered by start date.
func (c conn) ListEventsByUser(ctx context.Context, userID int64) ([]domain.CalendarEvent, error) {
	rows, err := c.query(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	events := []domain.CalendarEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storageErr("scan event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list events", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.Before(events[j].StartDate)
	})
	return events, nil
}

// ListEventsWithContacts returns a user's events with their attached contacts inlined.
func (c conn) ListEventsWithContacts(ctx context.Context, userID int64) ([]domain.CalendarEvent, error) {
	events, err := c.ListEventsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	contacts, err := c.ListContactsByEvents(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if cs, ok := contacts[events[i].ID]; ok {
			events[i].Contacts = cs
		} else {
			events[i].Contacts = []domain.EventContact{}
		}
	}
	return events, nil
}

// ListEventKeys maps every stored external ID of a user to its internal ID.
func (c conn) ListEventKeys(ctx context.Context, userID int64) (map[string]int64, error) {
	rows, err := c.query(ctx, `SELECT external_id, id FROM calendar_events WHERE user_id = ?`, userID)
	if err != nil {
		return nil, storageErr("list event keys", err)
	}
	defer rows.Close()

	keys := make(map[string]int64)
	for rows.Next() {
		var ext string
		var id int64
		if err := rows.Scan(&ext, &id); err != nil {
			return nil, storageErr("scan event key", err)
		}
		keys[ext] = id
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list event keys", err)
	}
	return keys, nil
}

// DeleteEventsByID removes events by internal ID; contacts cascade.
func (c conn) DeleteEventsByID(ctx context.Context, ids []int64) (int, error) {
	deleted := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		res, err := c.exec(ctx, `DELETE FROM calendar_events WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return deleted, storageErr("delete events", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, storageErr("delete events", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// DeleteEvent removes one event by natural key. A missing row is port.ErrEventNotFound.
func (c conn) DeleteEvent(ctx context.Context, userID int64, externalID string) error {
	res, err := c.exec(ctx, `DELETE FROM calendar_events WHERE user_id = ? AND external_id = ?`, userID, externalID)
	if err != nil {
		return storageErr("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete event", err)
	}
	if n == 0 {
		return port.ErrEventNotFound
	}
	return nil
}

// CreateEvent inserts a fresh event and attaches its contacts atomically.
func (s *Store) CreateEvent(ctx context.Context, e *domain.CalendarEvent, contacts []domain.EventContact, now time.Time) (*domain.CalendarEvent, error) {
	var created *domain.CalendarEvent
	err := s.WithTx(ctx, func(tx *Tx) error {
		out, err := tx.InsertEvent(ctx, e, now)
		if err != nil {
			return err
		}
		if err := tx.AttachContacts(ctx, out.ID, contacts, now); err != nil {
			return err
		}
		out.Contacts, err = tx.ListContactsByEvent(ctx, out.ID)
		if err != nil {
			return err
		}
		created = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func eventArgs(e *domain.CalendarEvent, now time.Time) []any {
	return []any{
		e.ExternalID, e.UserID, e.UserSubject, e.Title,
		e.StartDate.UTC(), e.EndDate.UTC(), e.IsAllDay,
		e.Notes, e.Location, e.CalendarID, e.CalendarName,
		nullableTime(e.FetchedAt), now, now,
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanEvent(row scanner) (*domain.CalendarEvent, error) {
	var e domain.CalendarEvent
	var fetched sql.NullTime
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.UserID, &e.UserSubject, &e.Title,
		&e.StartDate, &e.EndDate, &e.IsAllDay,
		&e.Notes, &e.Location, &e.CalendarID, &e.CalendarName,
		&fetched, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fetched.Valid {
		t := fetched.Time
		e.FetchedAt = &t
	}
	return &e, nil
}
