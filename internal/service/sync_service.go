package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// EventInput is one client-observed event as submitted in a sync snapshot or
// a single-event create. Timestamps are ISO-8601 strings.
type EventInput struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	StartDate    string         `json:"startDate"`
	EndDate      string         `json:"endDate"`
	IsAllDay     bool           `json:"isAllDay"`
	Notes        string         `json:"notes"`
	Location     string         `json:"location"`
	CalendarID   string         `json:"calendarId"`
	CalendarName string         `json:"calendarName"`
	FetchedAt    string         `json:"fetchedAt"`
	Contacts     []ContactInput `json:"contacts"`
}

// ContactInput is a contact attached to an incoming event.
type ContactInput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Emails       []string `json:"emails"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// snapshotEvent is a validated EventInput. A nil contacts slice leaves stored contacts alone.
type snapshotEvent struct {
	event    domain.CalendarEvent
	contacts []domain.EventContact
}

// SyncService reconciles full client snapshots into the event store.
type SyncService struct {
	store     *store.Store
	locks     *OwnerLocks
	notifier  port.ChangeNotifier
	audit     port.AuditWriter
	maxEvents int
	now       func() time.Time
}

// NewSyncService creates a reconciler. notifier and audit may be nil.
func NewSyncService(s *store.Store, locks *OwnerLocks, notifier port.ChangeNotifier, audit port.AuditWriter, maxEvents int) *SyncService {
	if locks == nil {
		locks = NewOwnerLocks()
	}
	return &SyncService{
		store:     s,
		locks:     locks,
		notifier:  notifier,
		audit:     audit,
		maxEvents: maxEvents,
		now:       time.Now,
	}
}

// Reconcile makes the owner's stored events match snapshot exactly: every
// snapshot event is upserted by (external id, owner) and every stored event
// absent from the snapshot is deleted, along with its contacts. The whole
// call is one transaction. An empty snapshot deletes everything.
func (s *SyncService) Reconcile(ctx context.Context, ownerID int64, ownerSubject string, snapshot []EventInput) (*domain.SyncResult, error) {
	if s.maxEvents > 0 && len(snapshot) > s.maxEvents {
		return nil, port.ValidationErrors{{
			Index:  -1,
			Field:  "events",
			Reason: fmt.Sprintf("snapshot has %d events, limit is %d", len(snapshot), s.maxEvents),
		}}
	}

	events, err := parseSnapshot(snapshot, ownerID, ownerSubject)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("wait for owner %d: %w", ownerID, err)
	}
	defer unlock()

	start := time.Now()
	var (
		result  domain.SyncResult
		subject string
	)

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.LockOwner(ctx, ownerID); err != nil {
			return err
		}

		owner, err := tx.GetUserByID(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("load owner %d: %w", ownerID, err)
		}
		if ownerSubject != "" && owner.Subject != ownerSubject {
			return fmt.Errorf("owner %d subject mismatch: %w", ownerID, port.ErrForbidden)
		}
		subject = owner.Subject

		existing, err := tx.ListEventKeys(ctx, ownerID)
		if err != nil {
			return err
		}

		now := s.now()
		seen := make(map[string]struct{}, len(events))
		for _, se := range events {
			se.event.UserSubject = owner.Subject
			id, err := tx.UpsertEvent(ctx, &se.event, now)
			if err != nil {
				return err
			}
			if se.contacts != nil {
				if err := tx.ReplaceContacts(ctx, id, se.contacts, now); err != nil {
					return err
				}
			}

			seen[se.event.ExternalID] = struct{}{}
			if _, ok := existing[se.event.ExternalID]; ok {
				result.EventsUpdated++
			} else {
				result.EventsInserted++
			}
		}
		result.EventsUpserted = len(seen)

		var stale []int64
		for ext, id := range existing {
			if _, ok := seen[ext]; !ok {
				stale = append(stale, id)
			}
		}
		slices.Sort(stale)

		result.EventsDeleted, err = tx.DeleteEventsByID(ctx, stale)
		return err
	})
	if err != nil {
		slog.Error("calendar sync rolled back", "owner_id", ownerID, "events", len(events), "error", err)
		return nil, err
	}

	result.CommittedAt = s.now().UTC()

	slog.Info("calendar sync committed",
		"owner_id", ownerID,
		"upserted", result.EventsUpserted,
		"inserted", result.EventsInserted,
		"updated", result.EventsUpdated,
		"deleted", result.EventsDeleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.afterCommit(subject, &result)
	return &result, nil
}

func (s *SyncService) afterCommit(subject string, result *domain.SyncResult) {
	if s.audit != nil {
		details, _ := json.Marshal(result)
		if err := s.audit.WriteAudit(subject, domain.AuditActionSync, "calendar", subject, string(details), "", ""); err != nil {
			slog.Error("failed to write sync audit log", "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(domain.CalendarChange{
			Subject:     subject,
			Kind:        domain.ChangeSynced,
			EventsCount: result.EventsUpserted,
			At:          result.CommittedAt,
		})
	}
}

// parseSnapshot validates every element before anything is written and
// reports all offending fields at once. A repeated id collapses to its last
// occurrence, contacts included, keeping the position of the first.
func parseSnapshot(inputs []EventInput, ownerID int64, ownerSubject string) ([]snapshotEvent, error) {
	var verrs port.ValidationErrors
	out := make([]snapshotEvent, 0, len(inputs))
	pos := make(map[string]int, len(inputs))
	for i, in := range inputs {
		se, errs := parseEventInput(i, in)
		if len(errs) > 0 {
			verrs = append(verrs, errs...)
			continue
		}
		se.event.UserID = ownerID
		se.event.UserSubject = ownerSubject
		if j, dup := pos[se.event.ExternalID]; dup {
			out[j] = se
			continue
		}
		pos[se.event.ExternalID] = len(out)
		out = append(out, se)
	}
	if len(verrs) > 0 {
		return nil, verrs
	}
	return out, nil
}

func parseEventInput(index int, in EventInput) (snapshotEvent, port.ValidationErrors) {
	var errs port.ValidationErrors
	fail := func(field, reason string) {
		errs = append(errs, port.ValidationError{Index: index, Field: field, Reason: reason})
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		fail("id", "required")
	}
	if strings.TrimSpace(in.Title) == "" {
		fail("title", "required")
	}

	startDate, err := parseTimestampInZone(in.StartDate)
	if err != nil {
		fail("startDate", err.Error())
	}
	endDate, err := parseTimestampInZone(in.EndDate)
	if err != nil {
		fail("endDate", err.Error())
	}
	if in.IsAllDay {
		startDate, endDate = allDaySpan(startDate, endDate)
	}
	startDate, endDate = startDate.UTC(), endDate.UTC()

	var fetchedAt *time.Time
	if in.FetchedAt != "" {
		t, err := ParseTimestamp(in.FetchedAt)
		if err != nil {
			fail("fetchedAt", err.Error())
		} else {
			fetchedAt = &t
		}
	}

	if len(errs) > 0 {
		return snapshotEvent{}, errs
	}

	se := snapshotEvent{
		event: domain.CalendarEvent{
			ExternalID:   id,
			Title:        in.Title,
			StartDate:    startDate,
			EndDate:      endDate,
			IsAllDay:     in.IsAllDay,
			Notes:        in.Notes,
			Location:     in.Location,
			CalendarID:   in.CalendarID,
			CalendarName: in.CalendarName,
			FetchedAt:    fetchedAt,
		},
	}
	if in.Contacts != nil {
		se.contacts = toContacts(in.Contacts)
	}
	return se, nil
}

func toContacts(in []ContactInput) []domain.EventContact {
	out := make([]domain.EventContact, len(in))
	for i, c := range in {
		out[i] = domain.EventContact{
			ExternalID:   c.ID,
			Name:         c.Name,
			Emails:       c.Emails,
			PhoneNumbers: c.PhoneNumbers,
		}
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

var errTimestamp = errors.New("must be an ISO-8601 timestamp")

// ParseTimestamp accepts RFC 3339 and the zone-less ISO-8601 forms clients
// send for floating and all-day events. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := parseTimestampInZone(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseTimestampInZone is ParseTimestamp keeping the offset the value was written in.
// A space before a trailing offset is read as '+', which is what an unencoded
// '+' in a query string decodes to.
func parseTimestampInZone(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	if n := len(s); n > 6 && s[n-6] == ' ' && s[n-3] == ':' {
		s = s[:n-6] + "+" + s[n-5:]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errTimestamp
}

// allDaySpan pins an all-day event to the calendar dates the client meant,
// read in the offset it sent, as UTC midnights. The end is exclusive: an end
// carrying a clock time rounds up to the next day, and the span covers at
// least one day.
func allDaySpan(start, end time.Time) (time.Time, time.Time) {
	from := calendarDate(start)
	to := calendarDate(end)
	if end.Hour() != 0 || end.Minute() != 0 || end.Second() != 0 || end.Nanosecond() != 0 {
		to = to.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		to = from.AddDate(0, 0, 1)
	}
	return from, to
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
