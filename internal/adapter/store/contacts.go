package store

import (
	"context"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
)

const contactColumns = `id, event_id, contact_id, name, emails, phone_numbers, created_at, updated_at`

// AttachContacts inserts contacts for an event in the given order. It never
// replaces existing rows.
func (c conn) AttachContacts(ctx context.Context, eventID int64, contacts []domain.EventContact, now time.Time) error {
	query := `INSERT INTO event_contacts (event_id, contact_id, name, emails, phone_numbers, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	now = now.UTC()
	for _, ct := range contacts {
		if _, err := c.exec(ctx, query,
			eventID, ct.ExternalID, ct.Name,
			encodeStringList(ct.Emails), encodeStringList(ct.PhoneNumbers),
			now, now,
		); err != nil {
			return storageErr("attach contact", err)
		}
	}
	return nil
}

// ListContactsByEvent returns an event's contacts in creation order.
func (c conn) ListContactsByEvent(ctx context.Context, eventID int64) ([]domain.EventContact, error) {
	byEvent, err := c.ListContactsByEvents(ctx, []int64{eventID})
	if err != nil {
		return nil, err
	}
	if cs, ok := byEvent[eventID]; ok {
		return cs, nil
	}
	return []domain.EventContact{}, nil
}

// ListContactsByEvents groups contacts by event ID, each group in creation order.
func (c conn) ListContactsByEvents(ctx context.Context, eventIDs []int64) (map[int64][]domain.EventContact, error) {
	out := make(map[int64][]domain.EventContact)
	for start := 0; start < len(eventIDs); start += deleteChunk {
		end := min(start+deleteChunk, len(eventIDs))
		chunk := eventIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := c.query(ctx,
			`SELECT `+contactColumns+` FROM event_contacts WHERE event_id IN (`+placeholders(len(chunk))+`) ORDER BY id`,
			args...,
		)
		if err != nil {
			return nil, storageErr("list contacts", err)
		}
		for rows.Next() {
			var ct domain.EventContact
			var emails, phones string
			if err := rows.Scan(
				&ct.ID, &ct.EventID, &ct.ExternalID, &ct.Name,
				&emails, &phones, &ct.CreatedAt, &ct.UpdatedAt,
			); err != nil {
				rows.Close()
				return nil, storageErr("scan contact", err)
			}
			ct.Emails = decodeStringList(emails).Values
			ct.PhoneNumbers = decodeStringList(phones).Values
			out[ct.EventID] = append(out[ct.EventID], ct)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, storageErr("list contacts", err)
		}
	}
	return out, nil
}

// DeleteContactsByEvent removes every contact of an event and returns how many were removed.
func (c conn) DeleteContactsByEvent(ctx context.Context, eventID int64) (int, error) {
	res, err := c.exec(ctx, `DELETE FROM event_contacts WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, storageErr("delete contacts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete contacts", err)
	}
	return int(n), nil
}

// ReplaceContacts swaps an event's contacts for the given list inside the transaction.
func (t *Tx) ReplaceContacts(ctx context.Context, eventID int64, contacts []domain.EventContact, now time.Time) error {
	if _, err := t.DeleteContactsByEvent(ctx, eventID); err != nil {
		return err
	}
	return t.AttachContacts(ctx, eventID, contacts, now)
}
