package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
)

// Dependencies are the collaborators the routes need. Tokens, LimiterStorage and
// CachePing may be nil.
type Dependencies struct {
	Payments       *controllers.PaymentController
	Tokens         TokenProber
	LimiterStorage fiber.Storage
	CachePing      func(ctx context.Context) error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app,
		NewServiceRouter(deps.Tokens, deps.CachePing),
		NewApiRouter(deps.Payments, deps.LimiterStorage),
	)

	// must stay last
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not found",
		})
	})
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
