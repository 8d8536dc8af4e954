// Package ical renders stored calendar events as an iCalendar feed.
package ical

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/rohan-chari/tempo-backend/internal/domain"
)

const productID = "-//tempo//calendar export//EN"

// Encode writes events as one VCALENDAR to w. All-day events use DATE values;
// every contact email becomes an ATTENDEE.
func Encode(w io.Writer, calendarName string, events []domain.CalendarEvent, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if calendarName != "" {
		cal.Props.SetText("X-WR-CALNAME", calendarName)
	}

	for i := range events {
		cal.Children = append(cal.Children, toVEvent(&events[i], now))
	}

	if len(cal.Children) == 0 {
		return encodeEmpty(w, cal)
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// encodeEmpty writes a VCALENDAR with no components. go-ical's encoder
// rejects those, but an owner with no events still gets a valid feed.
func encodeEmpty(w io.Writer, cal *ical.Calendar) error {
	var b strings.Builder
	b.WriteString("BEGIN:" + ical.CompCalendar + "\r\n")

	names := make([]string, 0, len(cal.Props))
	for name := range cal.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, p := range cal.Props[name] {
			b.WriteString(p.Name)
			params := make([]string, 0, len(p.Params))
			for k := range p.Params {
				params = append(params, k)
			}
			sort.Strings(params)
			for _, k := range params {
				b.WriteString(";" + k + "=" + strings.Join(p.Params[k], ","))
			}
			b.WriteString(":" + p.Value + "\r\n")
		}
	}

	b.WriteString("END:" + ical.CompCalendar + "\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func toVEvent(e *domain.CalendarEvent, now time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, e.ExternalID)
	ve.Props.SetText(ical.PropSummary, e.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())

	if e.IsAllDay {
		start, end := e.StartDate.UTC(), e.EndDate.UTC()
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		ve.Props.SetDate(ical.PropDateTimeStart, start)
		ve.Props.SetDate(ical.PropDateTimeEnd, end)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartDate.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndDate.UTC())
	}

	if e.Notes != "" {
		ve.Props.SetText(ical.PropDescription, e.Notes)
	}
	if e.Location != "" {
		ve.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.CalendarName != "" {
		ve.Props.SetText(ical.PropCategories, e.CalendarName)
	}

	for _, c := range e.Contacts {
		for _, email := range c.Emails {
			email = strings.TrimSpace(email)
			if email == "" {
				continue
			}
			p := ical.NewProp(ical.PropAttendee)
			p.SetText(fmt.Sprintf("mailto:%s", email))
			if c.Name != "" {
				p.Params.Set(ical.ParamCommonName, c.Name)
			}
			ve.Props.Add(p)
		}
	}
	return ve
}
