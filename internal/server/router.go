package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Anvoria/sessionly/internal/config"
	"github.com/Anvoria/sessionly/internal/domain/auth"
)

// SetupRoutes mounts the auth API under /v1/auth, the JWKS, health and
// Prometheus endpoints.
func SetupRoutes(app *fiber.App, cfg *config.Config, comp *Components) {
	app.Get("/.well-known/jwks.json", auth.JWKSHandler(comp.KeyStore))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/v1")
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})

	authService := auth.NewService(comp.Users, comp.Sessions)
	authHandler := auth.NewHandler(authService, cfg.Server.CookieSecure)
	requireAuth := auth.AuthMiddleware(comp.KeyStore, comp.RevocationChecker(), cfg.Auth.Issuer, cfg.Auth.Audience)

	authGroup := api.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authHandler.Logout)

	authGroup.Post("/logout-all", requireAuth, authHandler.LogoutAll)
	authGroup.Get("/sessions", requireAuth, authHandler.Sessions)
	authGroup.Delete("/sessions/:id", requireAuth, authHandler.RevokeSession)
}
