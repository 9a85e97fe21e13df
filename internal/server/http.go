package server

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/Anvoria/sessionly/internal/cache"
	"github.com/Anvoria/sessionly/internal/config"
	"github.com/Anvoria/sessionly/internal/database"
	"github.com/Anvoria/sessionly/internal/migrations"
	"github.com/Anvoria/sessionly/internal/utils"
)

const shutdownTimeout = 10 * time.Second

// Start connects the database and Redis, runs migrations, wires the session
// stack and serves HTTP until SIGINT or SIGTERM. The janitor runs alongside
// the server unless disabled.
func Start(cfg *config.Config, envConfig *config.Environment) error {
	initLogger(cfg.Logging.Level)
	slog.Info("Environment loaded", "environment", envConfig.Environment.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(cfg); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return err
	}
	defer func() { _ = database.CloseDB() }()
	slog.Info("Database connected successfully")

	if cfg.Redis.Enabled() {
		if err := cache.ConnectRedis(ctx, &cfg.Redis); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			return err
		}
		defer func() { _ = cache.CloseRedis() }()
	}

	if err := migrations.RunMigrations(cfg); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return err
	}
	slog.Info("Migrations completed successfully")

	components, err := NewComponents(cfg, envConfig)
	if err != nil {
		slog.Error("Failed to initialize session components", "error", err)
		return err
	}

	app := newApp(cfg)
	SetupRoutes(app, cfg, components)

	janitorDone := make(chan struct{})
	if cfg.Janitor.Disabled {
		close(janitorDone)
		slog.Info("Janitor disabled")
	} else {
		go func() {
			defer close(janitorDone)
			components.Janitor.Run(ctx)
		}()
	}

	listenErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Address()
		slog.Info("Server starting",
			"address", addr,
			"app", cfg.App.Name,
			"version", cfg.App.Version,
		)
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		stop()
		<-janitorDone
		if err != nil {
			slog.Error("Failed to start server", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	<-janitorDone

	return nil
}

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(helmet.New())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimit.Max,
		Expiration: time.Duration(cfg.Server.RateLimit.Expiration) * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.ErrorResponse(c, utils.ErrTooManyRequests)
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
		ExposeHeaders:    "Content-Length",
		MaxAge:           3600,
	}))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var apiErr *utils.APIError
	if errors.As(err, &apiErr) {
		return utils.ErrorResponse(c, apiErr)
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		return utils.ErrorResponse(c, utils.NewAPIError("HTTP_ERROR", e.Message, e.Code))
	}

	slog.Error("Unhandled error", "path", c.Path(), "error", err)
	return utils.ErrorResponse(c, utils.ErrInternalServer)
}

func initLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(handler))
}
