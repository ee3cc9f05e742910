package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Checker-Finance/ticker-bots/internal/store"
)

// Pinger is an optional dependency reported by /health (e.g. the NATS publisher).
type Pinger interface {
	HealthCheck() error
}

// Routes groups everything RegisterRoutes wires.
type Routes struct {
	Store  store.Store
	Checks map[string]Pinger

	Bots  *BotHandler
	Admin *AdminHandler
	// AdminUsers enables the admin API; nil or empty leaves it unregistered.
	AdminUsers map[string]string
}

func RegisterRoutes(app *fiber.App, r Routes) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{"store": "ok"}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.Store.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		for name, p := range r.Checks {
			checks[name] = "ok"
			if err := p.HealthCheck(); err != nil {
				checks[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")
	v1.Get("/crypto/search", r.Bots.Search)
	v1.Post("/crypto", r.Bots.Crypto)
	v1.Get("/crypto/:ticker", r.Bots.Crypto)
	v1.Post("/stock", r.Bots.Stock)
	v1.Get("/stock/:ticker", r.Bots.Stock)

	if r.Admin != nil && len(r.AdminUsers) > 0 {
		admin := v1.Group("/admin", basicauth.New(basicauth.Config{
			Users: r.AdminUsers,
			Realm: "ticker-bots admin",
		}))
		admin.Post("/bots", r.Admin.RegisterBot)
		admin.Post("/avatar", r.Admin.ChangeAvatar)
	}
}
