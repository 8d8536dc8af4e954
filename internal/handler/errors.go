package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// respondError maps the error taxonomy onto HTTP status codes. It is the only
// place handlers turn a typed failure into a response body.
func respondError(c fiber.Ctx, err error) error {
	var (
		verrs    port.ValidationErrors
		intent   *port.IntentError
		identity *port.IdentityError
		upstream *port.UpstreamError
		storage  *port.StorageError
	)

	switch {
	case errors.As(err, &verrs):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": []port.ValidationError(verrs),
		})

	case errors.Is(err, port.ErrUserNotFound), errors.Is(err, port.ErrEventNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, port.ErrEventExists), errors.Is(err, port.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, port.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})

	case errors.Is(err, port.ErrUnauthorized), errors.Is(err, port.ErrTokenInvalid), errors.Is(err, port.ErrTokenExpired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})

	case errors.As(err, &intent):
		return respondIntentError(c, intent)

	case errors.As(err, &identity):
		status := fiber.StatusUnauthorized
		switch identity.Kind {
		case port.IdentityTimeout:
			status = fiber.StatusGatewayTimeout
		case port.IdentityRateLimited:
			status = fiber.StatusTooManyRequests
		case port.IdentityUpstreamError, port.IdentityMalformedUpstream:
			status = fiber.StatusBadGateway
		}
		return c.Status(status).JSON(fiber.Map{"error": "identity verification failed", "kind": identity.Kind})

	case errors.As(err, &upstream):
		if upstream.RateLimited() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "upstream rate limited"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream failure"})

	case errors.As(err, &storage):
		slog.Error("storage failure", "op", storage.Op, "error", storage.Err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage failure"})
	}

	slog.Error("unhandled error", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func respondIntentError(c fiber.Ctx, ie *port.IntentError) error {
	status := fiber.StatusBadGateway
	switch ie.Kind {
	case port.IntentTimeout:
		status = fiber.StatusGatewayTimeout
	case port.IntentRateLimited:
		status = fiber.StatusTooManyRequests
	}

	body := fiber.Map{
		"error":     "could not understand the request",
		"kind":      ie.Kind,
		"retryable": ie.Retryable(),
	}
	if len(ie.Missing) > 0 {
		body["missing"] = ie.Missing
	}
	return c.Status(status).JSON(body)
}
