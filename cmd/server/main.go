package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/rohan-chari/tempo-backend/internal/adapter/ai"
	"github.com/rohan-chari/tempo-backend/internal/adapter/auth"
	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/handler"
	"github.com/rohan-chari/tempo-backend/internal/mcp"
	"github.com/rohan-chari/tempo-backend/internal/router"
	"github.com/rohan-chari/tempo-backend/internal/service"
	"github.com/rohan-chari/tempo-backend/pkg/config"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	app := &cli.App{
		Name:  "tempo",
		Usage: "Calendar assistant backend: snapshot sync, event queries and chat intents.",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API (and the MCP server when enabled).",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "log-requests", Value: true, Usage: "Write an access log line per request."},
			&cli.BoolFlag{Name: "skip-migrate", Usage: "Do not apply the schema on startup."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("starting Tempo",
				"port", cfg.Port,
				"database_driver", cfg.DatabaseDriver,
				"ollama_chat", cfg.OllamaChatURL,
				"mcp_enabled", cfg.MCPEnabled,
			)

			// ── Database ─────────────────────────────────────────────────
			db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if !c.Bool("skip-migrate") {
				if err := db.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			// ── Adapters ─────────────────────────────────────────────────
			verifier, err := auth.NewGoogleVerifier(ctx, cfg.GoogleClientID)
			if err != nil {
				return fmt.Errorf("google verifier: %w", err)
			}

			ollamaAI := ai.NewOllamaProvider(ai.OllamaEndpointConfig{
				BaseURL: cfg.OllamaChatURL,
				Model:   cfg.OllamaChatModel,
				Token:   cfg.OllamaChatToken,
			})

			bus := handler.NewChangeBus()

			// ── Services ─────────────────────────────────────────────────
			users := service.NewUserService(db)
			authService := service.NewAuthService(verifier, users, db, cfg)
			syncService := service.NewSyncService(db, service.NewOwnerLocks(), bus, db, cfg.SyncMaxEvents)
			eventService := service.NewEventService(db, bus, db)
			intentService := service.NewIntentService(ollamaAI, cfg.IntentTimeout())
			chatService := service.NewChatService(intentService, eventService, db)

			app := router.New(router.Deps{
				Config:     cfg,
				Store:      db,
				Bus:        bus,
				Auth:       authService,
				Users:      users,
				Sync:       syncService,
				Events:     eventService,
				Chat:       chatService,
				RequestLog: c.Bool("log-requests"),
			})

			// ── MCP Server (separate port) ───────────────────────────────
			if cfg.MCPEnabled {
				mcpServer := mcp.NewServer(eventService, intentService, db, authService.JWTConfig(), cfg.MCPPort)
				go func() {
					if err := mcpServer.Start(ctx); err != nil {
						slog.Error("MCP server failed", "error", err)
					}
				}()
			}

			// ── Start ────────────────────────────────────────────────────
			errCh := make(chan error, 1)
			go func() {
				slog.Info("fiber listening", "port", cfg.Port)
				errCh <- app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema and exit.",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(c.Context); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			slog.Info("schema applied", "driver", db.Dialect())
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	slog.SetDefault(setupLogger(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
