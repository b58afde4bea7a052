package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/daraja"
)

const (
	serviceName    = "payfox"
	serviceVersion = "1.0.0"
	readyTimeout   = 10 * time.Second
)

// TokenProber obtains a Daraja access token. Readiness uses it to prove the
// credentials work.
type TokenProber interface {
	Token(ctx context.Context) (string, error)
}

// ServiceRouter serves service info, liveness and readiness.
type ServiceRouter struct {
	tokens    TokenProber
	cachePing func(ctx context.Context) error
}

func NewServiceRouter(tokens TokenProber, cachePing func(ctx context.Context) error) *ServiceRouter {
	return &ServiceRouter{tokens: tokens, cachePing: cachePing}
}

func (h ServiceRouter) InstallRouter(app *fiber.App) {
	app.Get("/", h.handleIndex)
	app.Get("/health", h.handleHealth)
	app.Get("/health/ready", h.handleReady)
}

func (h ServiceRouter) handleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"version": serviceVersion,
		"docs":    "/docs/api/v1",
		"endpoints": fiber.Map{
			"health":     "GET /health",
			"ready":      "GET /health/ready",
			"payments":   "GET/POST /api/v1/payments",
			"validation": "GET /api/v1/payments/validation",
			"callback":   "POST /api/v1/payments/callback (Daraja webhook)",
		},
	})
}

func (h ServiceRouter) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": serviceName})
}

// handleReady reports 503 when no Daraja token can be obtained. The cache state is
// informational only since payments work without it.
func (h ServiceRouter) handleReady(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()

	res := fiber.Map{"service": serviceName}
	if h.cachePing != nil {
		if err := h.cachePing(ctx); err != nil {
			res["cache"] = "unavailable"
		} else {
			res["cache"] = "connected"
		}
	}

	if h.tokens == nil {
		res["status"] = "unhealthy"
		res["daraja"] = "not_configured"
		return c.Status(fiber.StatusServiceUnavailable).JSON(res)
	}
	if _, err := h.tokens.Token(ctx); err != nil {
		log.Warnf("[Health] Daraja token check failed: %v", err)
		res["status"] = "unhealthy"
		res["daraja"] = "token_failed"
		res["detail"] = daraja.Truncate(err.Error(), 200)
		return c.Status(fiber.StatusServiceUnavailable).JSON(res)
	}

	res["status"] = "ok"
	res["daraja"] = "connected"
	return c.JSON(res)
}
