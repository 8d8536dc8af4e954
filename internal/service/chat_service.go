package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // timezone names from clients must resolve in minimal containers

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// ChatRequest is one user chat turn.
type ChatRequest struct {
	Message  string         `json:"message"`
	Contacts []ContactInput `json:"contacts"`
	Now      *time.Time     `json:"now"`
	Timezone string         `json:"timezone"`
	Execute  bool           `json:"execute"`
}

// ChatResponse carries the parsed intent and a human-readable summary.
type ChatResponse struct {
	Intent   *domain.Intent        `json:"intent"`
	Response string                `json:"response"`
	Executed bool                  `json:"executed"`
	Event    *domain.CalendarEvent `json:"event,omitempty"`
}

// ChatService runs the chat flow: translate the message, describe the intent
// and, when asked to, execute CREATE intents synchronously.
type ChatService struct {
	intents *IntentService
	events  *EventService
	audit   port.AuditWriter
	now     func() time.Time
}

// NewChatService creates a new chat service. audit may be nil.
func NewChatService(intents *IntentService, events *EventService, audit port.AuditWriter) *ChatService {
	return &ChatService{intents: intents, events: events, audit: audit, now: time.Now}
}

// Chat handles one message for the authenticated user.
func (s *ChatService) Chat(ctx context.Context, uc *domain.UserContext, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, port.ValidationErrors{{Index: -1, Field: "message", Reason: "required"}}
	}

	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, port.ValidationErrors{{Index: -1, Field: "timezone", Reason: "unknown timezone"}}
		}
		loc = l
	}

	now := s.now()
	if req.Now != nil {
		now = *req.Now
	}

	roster := toContacts(req.Contacts)
	intent, err := s.intents.Translate(ctx, domain.IntentRequest{
		Message:  message,
		Now:      now,
		Location: loc,
		Roster:   roster,
	})
	if err != nil {
		slog.Warn("intent translation failed", "subject", uc.Subject, "error", err)
		return nil, err
	}

	resp := &ChatResponse{Intent: intent, Response: describeIntent(intent)}

	if req.Execute && intent.Action == domain.IntentActionCreate {
		in, err := eventFromIntent(intent, loc, roster)
		if err != nil {
			return nil, err
		}
		created, err := s.events.CreateEvent(ctx, uc.UserID, uc.Subject, in)
		if err != nil {
			return nil, fmt.Errorf("execute intent: %w", err)
		}
		resp.Executed = true
		resp.Event = created
		resp.Response = fmt.Sprintf("Created %q.", created.Title)
	}

	if s.audit != nil {
		details, _ := json.Marshal(map[string]any{"action": intent.Action, "executed": resp.Executed})
		if err := s.audit.WriteAudit(uc.Subject, domain.AuditActionChat, "chat", intent.Action, string(details), "", ""); err != nil {
			slog.Error("failed to write chat audit log", "error", err)
		}
	}
	return resp, nil
}

func describeIntent(in *domain.Intent) string {
	title := in.Title
	if title == "" {
		title = "an event"
	} else {
		title = fmt.Sprintf("%q", title)
	}

	var when string
	if in.StartDate != "" {
		when = " on " + in.StartDate
		if in.StartTime != "" {
			when += " at " + in.StartTime
		}
	}

	var with string
	if len(in.Contacts) > 0 {
		with = " with " + strings.Join(in.Contacts, ", ")
	}

	switch in.Action {
	case domain.IntentActionCreate:
		return fmt.Sprintf("I'll create %s%s%s.", title, when, with)
	case domain.IntentActionUpdate:
		return fmt.Sprintf("I'll update %s%s.", title, when)
	case domain.IntentActionDelete:
		return fmt.Sprintf("I'll delete %s%s.", title, when)
	default:
		switch {
		case in.StartDate != "" && in.EndDate != "" && in.EndDate != in.StartDate:
			return fmt.Sprintf("Looking up your events from %s to %s.", in.StartDate, in.EndDate)
		case in.StartDate != "":
			return fmt.Sprintf("Looking up your events on %s.", in.StartDate)
		default:
			return "Looking up your events."
		}
	}
}

// defaultEventLength applies when the intent has a start time but no end.
const defaultEventLength = time.Hour

// eventFromIntent resolves a CREATE intent into a concrete event in loc.
// Without a start time the event is all-day and spans whole days.
func eventFromIntent(in *domain.Intent, loc *time.Location, roster []domain.EventContact) (EventInput, error) {
	if in.StartDate == "" {
		return EventInput{}, port.ValidationErrors{{Index: -1, Field: "intent.startDate", Reason: "required to create an event"}}
	}
	startDay, err := time.ParseInLocation(time.DateOnly, in.StartDate, loc)
	if err != nil {
		return EventInput{}, port.ValidationErrors{{Index: -1, Field: "intent.startDate", Reason: "must be YYYY-MM-DD"}}
	}
	endDay := startDay
	if in.EndDate != "" {
		endDay, err = time.ParseInLocation(time.DateOnly, in.EndDate, loc)
		if err != nil {
			return EventInput{}, port.ValidationErrors{{Index: -1, Field: "intent.endDate", Reason: "must be YYYY-MM-DD"}}
		}
	}

	var start, end time.Time
	allDay := in.StartTime == ""
	if allDay {
		start = startDay
		end = endDay.AddDate(0, 0, 1)
	} else {
		start, err = atClock(startDay, in.StartTime)
		if err != nil {
			return EventInput{}, port.ValidationErrors{{Index: -1, Field: "intent.startTime", Reason: "must be HH:MM"}}
		}
		if in.EndTime != "" {
			end, err = atClock(endDay, in.EndTime)
			if err != nil {
				return EventInput{}, port.ValidationErrors{{Index: -1, Field: "intent.endTime", Reason: "must be HH:MM"}}
			}
		} else {
			end = start.Add(defaultEventLength)
		}
	}

	title := in.Title
	if title == "" {
		title = "New event"
	}

	return EventInput{
		Title:     title,
		StartDate: start.Format(time.RFC3339),
		EndDate:   end.Format(time.RFC3339),
		IsAllDay:  allDay,
		Notes:     in.Notes,
		Location:  in.Location,
		Contacts:  matchContacts(in.Contacts, roster),
	}, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// matchContacts maps intent contact names onto roster entries, case-insensitively.
// Names not in the roster are attached by name only.
func matchContacts(names []string, roster []domain.EventContact) []ContactInput {
	byName := make(map[string]domain.EventContact, len(roster))
	for _, c := range roster {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}

	out := make([]ContactInput, 0, len(names))
	for _, n := range names {
		if c, ok := byName[strings.ToLower(strings.TrimSpace(n))]; ok {
			out = append(out, ContactInput{ID: c.ExternalID, Name: c.Name, Emails: c.Emails, PhoneNumbers: c.PhoneNumbers})
			continue
		}
		out = append(out, ContactInput{Name: n})
	}
	return out
}
