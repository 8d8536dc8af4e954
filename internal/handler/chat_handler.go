package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/service"
)

// ChatHandler handles natural-language chat messages.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Register sets up chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/chat", h.Chat)
}

// Chat parses one message into a calendar intent.
func (h *ChatHandler) Chat(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body service.ChatRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	resp, err := h.chat.Chat(c.Context(), uc, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}
