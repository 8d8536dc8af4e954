package handler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/adapter/ical"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/port"
	"github.com/rohan-chari/tempo-backend/internal/service"
)

// EventsHandler serves the read side and single-event writes.
type EventsHandler struct {
	events  *service.EventService
	appName string
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(events *service.EventService, appName string) *EventsHandler {
	return &EventsHandler{events: events, appName: appName}
}

// Register sets up event routes.
func (h *EventsHandler) Register(router fiber.Router) {
	events := router.Group("/events")
	events.Get("/", h.List)
	events.Post("/", h.Create)
	events.Get("/stats", h.Stats)
	events.Get("/export.ics", h.Export)
	events.Delete("/:id", h.Delete)
	events.Delete("/:id/contacts", h.DeleteContacts)
}

// List returns the caller's events, optionally filtered by startDate, endDate and calendarId.
func (h *EventsHandler) List(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	filter, err := parseFilter(c)
	if err != nil {
		return respondError(c, err)
	}

	events, err := h.events.ListEvents(c.Context(), uc.Subject, filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}

// Stats returns per-calendar counts and the upcoming/past split.
func (h *EventsHandler) Stats(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	stats, err := h.events.ComputeStats(c.Context(), uc.Subject)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// Create stores one event with its contacts.
func (h *EventsHandler) Create(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body service.EventInput
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	created, err := h.events.CreateEvent(c.Context(), uc.UserID, uc.Subject, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// Delete removes one event by its external id.
func (h *EventsHandler) Delete(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	id := c.Params("id")
	if err := h.events.DeleteEvent(c.Context(), uc.UserID, uc.Subject, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": true, "id": id})
}

// DeleteContacts removes every contact attached to one event.
func (h *EventsHandler) DeleteContacts(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	n, err := h.events.DeleteContacts(c.Context(), uc.UserID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

// Export renders the caller's events as an iCalendar file.
func (h *EventsHandler) Export(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	events, err := h.events.ListEvents(c.Context(), uc.Subject, domain.EventFilter{})
	if err != nil {
		return respondError(c, err)
	}

	var buf bytes.Buffer
	if err := ical.Encode(&buf, h.appName, events, time.Now()); err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/calendar; charset=utf-8")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "calendar.ics"))
	return c.Send(buf.Bytes())
}

func parseFilter(c fiber.Ctx) (domain.EventFilter, error) {
	var (
		filter domain.EventFilter
		verrs  port.ValidationErrors
	)
	if v := c.Query("startDate"); v != "" {
		t, err := service.ParseTimestamp(v)
		if err != nil {
			verrs = append(verrs, port.ValidationError{Index: -1, Field: "startDate", Reason: err.Error()})
		} else {
			filter.StartDate = &t
		}
	}
	if v := c.Query("endDate"); v != "" {
		t, err := service.ParseTimestamp(v)
		if err != nil {
			verrs = append(verrs, port.ValidationError{Index: -1, Field: "endDate", Reason: err.Error()})
		} else {
			filter.EndDate = &t
		}
	}
	filter.CalendarID = c.Query("calendarId")

	if len(verrs) > 0 {
		return filter, verrs
	}
	return filter, nil
}
