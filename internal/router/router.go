// Package router assembles the HTTP application from its services.
package router

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/handler"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/service"
	"github.com/rohan-chari/tempo-backend/pkg/config"
)

// Deps are the process-wide resources and services the routes need.
type Deps struct {
	Config *config.Config
	Store  *store.Store
	Bus    *handler.ChangeBus

	Auth   *service.AuthService
	Users  *service.UserService
	Sync   *service.SyncService
	Events *service.EventService
	Chat   *service.ChatService

	// RequestLog enables fiber's access logger.
	RequestLog bool
}

// New builds the fiber app with every route mounted.
func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    16 * 1024 * 1024,
	})

	app.Use(recover.New())
	if d.RequestLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	app.Use(middleware.AuditMiddleware(d.Store))

	// ── Public Routes ────────────────────────────────────────────────────
	public := app.Group("/api/v1")

	authHandler := handler.NewAuthHandler(d.Auth, d.Users)
	authHandler.Register(public)

	public.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	api := app.Group("/api/v1", middleware.JWTMiddleware(d.Auth.JWTConfig()))

	authHandler.RegisterProtected(api)

	handler.NewSyncHandler(d.Sync).Register(api)
	handler.NewEventsHandler(d.Events, cfg.AppName).Register(api)
	handler.NewChatHandler(d.Chat).Register(api)
	handler.NewAuditHandler(d.Store).Register(api)
	handler.NewStreamHandler(d.Bus).Register(api)

	return app
}
