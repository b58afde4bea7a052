package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
	apiv1 "github.com/ManuelReschke/PayFox/internal/api/v1"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
	"github.com/ManuelReschke/PayFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	payments       *controllers.PaymentController
	limiterStorage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", ratelimit.New(h.limiterStorage), middleware.UserContextMiddleware)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.payments)
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter(payments *controllers.PaymentController, limiterStorage fiber.Storage) *ApiRouter {
	return &ApiRouter{payments: payments, limiterStorage: limiterStorage}
}
