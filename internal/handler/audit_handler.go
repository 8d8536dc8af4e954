package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
)

const maxAuditLimit = 500

// AuditLister reads audit rows for one subject.
type AuditLister interface {
	ListAuditLogs(ctx context.Context, subject string, limit int, action string) ([]domain.AuditLog, error)
}

// AuditHandler handles audit log endpoints.
type AuditHandler struct {
	store AuditLister
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store AuditLister) *AuditHandler {
	return &AuditHandler{store: store}
}

// Register sets up audit routes.
func (h *AuditHandler) Register(router fiber.Router) {
	audit := router.Group("/audit")
	audit.Get("/logs", h.ListLogs)
}

// ListLogs returns the caller's audit logs with optional filtering.
func (h *AuditHandler) ListLogs(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	limit = min(limit, maxAuditLimit)
	action := c.Query("action", "")

	logs, err := h.store.ListAuditLogs(c.Context(), uc.Subject, limit, action)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}
