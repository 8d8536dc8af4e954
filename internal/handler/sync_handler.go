package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/port"
	"github.com/rohan-chari/tempo-backend/internal/service"
)

// SyncHandler accepts full calendar snapshots from clients.
type SyncHandler struct {
	sync *service.SyncService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Register sets up sync routes.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/calendar/sync", h.Sync)
}

// Sync reconciles the caller's stored events against the submitted snapshot.
func (h *SyncHandler) Sync(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		Events json.RawMessage `json:"events"`
		UserID string          `json:"userId"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	var verrs port.ValidationErrors
	raw := bytes.TrimSpace(body.Events)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		verrs = append(verrs, port.ValidationError{Index: -1, Field: "events", Reason: "required"})
	case raw[0] != '[':
		verrs = append(verrs, port.ValidationError{Index: -1, Field: "events", Reason: "must be a list"})
	}
	if strings.TrimSpace(body.UserID) == "" {
		verrs = append(verrs, port.ValidationError{Index: -1, Field: "userId", Reason: "required"})
	}
	if len(verrs) > 0 {
		return respondError(c, verrs)
	}

	if body.UserID != uc.Subject {
		return respondError(c, port.ErrForbidden)
	}

	var events []service.EventInput
	if err := json.Unmarshal(raw, &events); err != nil {
		return respondError(c, port.ValidationErrors{{Index: -1, Field: "events", Reason: "each event must be an object with string fields"}})
	}

	result, err := h.sync.Reconcile(c.Context(), uc.UserID, uc.Subject, events)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"eventsCount":    result.EventsUpserted,
		"eventsInserted": result.EventsInserted,
		"eventsUpdated":  result.EventsUpdated,
		"eventsDeleted":  result.EventsDeleted,
		"timestamp":      result.CommittedAt,
	})
}
