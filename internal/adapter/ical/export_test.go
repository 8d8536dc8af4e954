package ical

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/rohan-chari/tempo-backend/internal/domain"
)

func TestEncodeRoundTrip(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	events := []domain.CalendarEvent{
		{
			ExternalID: "evt-1",
			Title:      "Design review",
			StartDate:  start,
			EndDate:    start.Add(time.Hour),
			Location:   "Room 4",
			Notes:      "bring drafts",
			Contacts: []domain.EventContact{
				{Name: "Ada", Emails: []string{"ada@example.com", " "}},
			},
		},
		{
			ExternalID: "evt-2",
			Title:      "Offsite",
			StartDate:  time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
			IsAllDay:   true,
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, "Work", events, start); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cal, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	vevents := cal.Events()
	if len(vevents) != 2 {
		t.Fatalf("got %d events, want 2", len(vevents))
	}

	uid, _ := vevents[0].Props.Text(ical.PropUID)
	if uid != "evt-1" {
		t.Fatalf("UID = %q", uid)
	}
	attendees := vevents[0].Props.Values(ical.PropAttendee)
	if len(attendees) != 1 || !strings.EqualFold(attendees[0].Value, "mailto:ada@example.com") {
		t.Fatalf("attendees = %+v", attendees)
	}

	dtstart := vevents[1].Props.Get(ical.PropDateTimeStart)
	if dtstart == nil || dtstart.Value != "20250312" {
		t.Fatalf("all-day DTSTART = %+v", dtstart)
	}
}

func TestEncodeEmpty(t *testing.T) {
	for _, events := range [][]domain.CalendarEvent{nil, {}} {
		var buf bytes.Buffer
		if err := Encode(&buf, "Tempo, home", events, time.Now()); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !strings.HasPrefix(buf.String(), "BEGIN:VCALENDAR\r\n") || !strings.HasSuffix(buf.String(), "END:VCALENDAR\r\n") {
			t.Fatalf("output = %q", buf.String())
		}

		cal, err := ical.NewDecoder(&buf).Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(cal.Events()) != 0 {
			t.Fatalf("events = %d, want 0", len(cal.Events()))
		}
		if v, _ := cal.Props.Text(ical.PropVersion); v != "2.0" {
			t.Fatalf("VERSION = %q", v)
		}
		if name, _ := cal.Props.Text("X-WR-CALNAME"); name != "Tempo, home" {
			t.Fatalf("X-WR-CALNAME = %q", name)
		}
	}
}

func TestEncodeAllDayIgnoresStoredLocation(t *testing.T) {
	// Stored as UTC midnight but read back in a local zone west of UTC.
	la := time.FixedZone("PDT", -7*3600)
	start := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC).In(la)
	events := []domain.CalendarEvent{{
		ExternalID: "offsite",
		Title:      "Offsite",
		StartDate:  start,
		EndDate:    start,
		IsAllDay:   true,
	}}

	var buf bytes.Buffer
	if err := Encode(&buf, "", events, time.Now()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "DTSTART;VALUE=DATE:20250312") || !strings.Contains(out, "DTEND;VALUE=DATE:20250313") {
		t.Fatalf("output = %s", out)
	}
}
