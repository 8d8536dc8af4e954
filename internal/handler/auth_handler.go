package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	users       *service.UserService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *service.AuthService, users *service.UserService) *AuthHandler {
	return &AuthHandler{authService: authService, users: users}
}

// Register sets up the public sign-in route.
func (h *AuthHandler) Register(router fiber.Router) {
	auth := router.Group("/auth")
	auth.Post("/google", h.GoogleSignIn)
}

// RegisterProtected sets up routes that need a session.
func (h *AuthHandler) RegisterProtected(router fiber.Router) {
	router.Get("/me", h.Me)
}

// GoogleSignIn exchanges a Google ID token for a session JWT.
func (h *AuthHandler) GoogleSignIn(c fiber.Ctx) error {
	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	jwt, user, err := h.authService.SignIn(c.Context(), body.IDToken, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": jwt,
		"user":  user,
	})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	user, err := h.users.GetUser(c.Context(), uc.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}
