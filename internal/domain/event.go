package domain

import "time"

// CalendarEvent is one client-observed calendar event owned by a single user.
// (ExternalID, UserID) is the natural key.
type CalendarEvent struct {
	ID           int64          `json:"-"            db:"id"`
	ExternalID   string         `json:"id"           db:"external_id"`
	UserID       int64          `json:"-"            db:"user_id"`
	UserSubject  string         `json:"userId"       db:"user_subject"`
	Title        string         `json:"title"        db:"title"`
	StartDate    time.Time      `json:"startDate"    db:"start_date"`
	EndDate      time.Time      `json:"endDate"      db:"end_date"`
	IsAllDay     bool           `json:"isAllDay"     db:"is_all_day"`
	Notes        string         `json:"notes"        db:"notes"`
	Location     string         `json:"location"     db:"location"`
	CalendarID   string         `json:"calendarId"   db:"calendar_id"`
	CalendarName string         `json:"calendarName" db:"calendar_name"`
	FetchedAt    *time.Time     `json:"fetchedAt"    db:"fetched_at"`
	CreatedAt    time.Time      `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt"    db:"updated_at"`
	Contacts     []EventContact `json:"contacts"     db:"-"`
}

// EventContact is a denormalized contact copy attached to one event.
type EventContact struct {
	ID           int64     `json:"-"            db:"id"`
	EventID      int64     `json:"-"            db:"event_id"`
	ExternalID   string    `json:"id"           db:"contact_id"`
	Name         string    `json:"name"         db:"name"`
	Emails       []string  `json:"emails"       db:"emails"`
	PhoneNumbers []string  `json:"phoneNumbers" db:"phone_numbers"`
	CreatedAt    time.Time `json:"-"            db:"created_at"`
	UpdatedAt    time.Time `json:"-"            db:"updated_at"`
}

// EventFilter narrows a user's events in memory. Zero values mean "no filter".
type EventFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CalendarID string
}

// Match reports whether e passes every set filter.
func (f EventFilter) Match(e CalendarEvent) bool {
	if f.StartDate != nil && e.StartDate.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.EndDate.After(*f.EndDate) {
		return false
	}
	if f.CalendarID != "" && e.CalendarID != f.CalendarID {
		return false
	}
	return true
}

// CalendarStats aggregates a user's events.
type CalendarStats struct {
	TotalEvents    int            `json:"totalEvents"`
	Calendars      map[string]int `json:"calendars"`
	UpcomingEvents int            `json:"upcomingEvents"`
	PastEvents     int            `json:"pastEvents"`
}

// SyncResult summarizes one committed reconcile.
type SyncResult struct {
	EventsUpserted int       `json:"eventsUpserted"`
	EventsInserted int       `json:"eventsInserted"`
	EventsUpdated  int       `json:"eventsUpdated"`
	EventsDeleted  int       `json:"eventsDeleted"`
	CommittedAt    time.Time `json:"timestamp"`
}

// Calendar change kinds published to stream subscribers.
const (
	ChangeSynced  = "synced"
	ChangeCreated = "created"
	ChangeDeleted = "deleted"
)

// CalendarChange notifies a user's other sessions that their stored calendar moved.
type CalendarChange struct {
	Subject     string    `json:"userId"`
	Kind        string    `json:"kind"`
	EventID     string    `json:"eventId,omitempty"`
	EventsCount int       `json:"eventsCount"`
	At          time.Time `json:"timestamp"`
}
