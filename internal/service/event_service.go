package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// unknownCalendar labels events whose client sent no calendar name.
const unknownCalendar = "Unknown"

// EventService serves the read side (listing and stats) and single-event writes.
type EventService struct {
	store    *store.Store
	notifier port.ChangeNotifier
	audit    port.AuditWriter
	now      func() time.Time
}

// NewEventService creates a new event service. notifier and audit may be nil.
func NewEventService(s *store.Store, notifier port.ChangeNotifier, audit port.AuditWriter) *EventService {
	return &EventService{store: s, notifier: notifier, audit: audit, now: time.Now}
}

// ListEvents returns the owner's events that pass filter, contacts inlined.
// Filtering happens in memory over the owner's full event set.
func (s *EventService) ListEvents(ctx context.Context, ownerSubject string, filter domain.EventFilter) ([]domain.CalendarEvent, error) {
	owner, err := s.store.GetUserBySubject(ctx, ownerSubject)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListEventsWithContacts(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]domain.CalendarEvent, 0, len(all))
	for _, e := range all {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ComputeStats counts the owner's events per calendar name and splits them
// into upcoming (start strictly after now) and past.
func (s *EventService) ComputeStats(ctx context.Context, ownerSubject string) (*domain.CalendarStats, error) {
	owner, err := s.store.GetUserBySubject(ctx, ownerSubject)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListEventsByUser(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}

	now := s.now()
	stats := &domain.CalendarStats{
		TotalEvents: len(events),
		Calendars:   make(map[string]int),
	}
	for _, e := range events {
		name := e.CalendarName
		if strings.TrimSpace(name) == "" {
			name = unknownCalendar
		}
		stats.Calendars[name]++

		if e.StartDate.After(now) {
			stats.UpcomingEvents++
		} else {
			stats.PastEvents++
		}
	}
	return stats, nil
}

// CreateEvent stores one new event with its contacts. A missing id is minted.
func (s *EventService) CreateEvent(ctx context.Context, ownerID int64, ownerSubject string, in EventInput) (*domain.CalendarEvent, error) {
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}

	se, verrs := parseEventInput(-1, in)
	if len(verrs) > 0 {
		return nil, verrs
	}
	se.event.UserID = ownerID
	se.event.UserSubject = ownerSubject

	created, err := s.store.CreateEvent(ctx, &se.event, se.contacts, s.now())
	if err != nil {
		return nil, err
	}

	slog.Info("event created", "owner_id", ownerID, "event_id", created.ExternalID, "contacts", len(created.Contacts))
	s.record(ownerSubject, domain.AuditActionEventCreate, created.ExternalID, domain.ChangeCreated)
	return created, nil
}

// DeleteEvent removes one event by external id. A missing event is port.ErrEventNotFound.
func (s *EventService) DeleteEvent(ctx context.Context, ownerID int64, ownerSubject, externalID string) error {
	if err := s.store.DeleteEvent(ctx, ownerID, externalID); err != nil {
		return err
	}
	slog.Info("event deleted", "owner_id", ownerID, "event_id", externalID)
	s.record(ownerSubject, domain.AuditActionEventDelete, externalID, domain.ChangeDeleted)
	return nil
}

// DeleteContacts removes every contact attached to one event and returns the count.
func (s *EventService) DeleteContacts(ctx context.Context, ownerID int64, externalID string) (int, error) {
	e, err := s.store.GetEvent(ctx, ownerID, externalID)
	if err != nil {
		return 0, err
	}
	return s.store.DeleteContactsByEvent(ctx, e.ID)
}

func (s *EventService) record(subject, action, eventID, kind string) {
	if s.audit != nil {
		details, _ := json.Marshal(map[string]string{"event_id": eventID})
		if err := s.audit.WriteAudit(subject, action, "event", eventID, string(details), "", ""); err != nil {
			slog.Error("failed to write event audit log", "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(domain.CalendarChange{
			Subject: subject,
			Kind:    kind,
			EventID: eventID,
			At:      s.now().UTC(),
		})
	}
}
