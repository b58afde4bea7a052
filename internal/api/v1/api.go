package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong defines model for Pong.
type Pong struct {
	Ping string `json:"ping"`
}

// ListPaymentsParams defines parameters for ListPayments.
type ListPaymentsParams struct {
	Page    *int    `json:"page,omitempty"`
	PerPage *int    `json:"perPage,omitempty"`
	UserId  *string `json:"userId,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /payments)
	ListPayments(c *fiber.Ctx, params ListPaymentsParams) error
	// (POST /payments)
	CreatePayment(c *fiber.Ctx) error
	// (POST /payments/query)
	QueryPayment(c *fiber.Ctx) error
	// (POST /payments/callback)
	PaymentCallback(c *fiber.Ctx) error
	// (GET /payments/validation)
	PaymentValidation(c *fiber.Ctx) error
	// (GET /payments/stats)
	GetPaymentStats(c *fiber.Ctx) error
	// (GET /payments/{id})
	GetPayment(c *fiber.Ctx, id string) error
}

// ServerInterfaceWrapper converts fiber contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

// ListPayments operation middleware. Malformed numeric parameters are treated as absent.
func (siw *ServerInterfaceWrapper) ListPayments(c *fiber.Ctx) error {
	var params ListPaymentsParams

	if v := c.QueryInt("page", 0); v != 0 {
		params.Page = &v
	}
	if v := c.QueryInt("perPage", 0); v != 0 {
		params.PerPage = &v
	}
	if v := c.Query("userId"); v != "" {
		params.UserId = &v
	}
	if v := c.Query("status"); v != "" {
		params.Status = &v
	}

	return siw.Handler.ListPayments(c, params)
}

func (siw *ServerInterfaceWrapper) CreatePayment(c *fiber.Ctx) error {
	return siw.Handler.CreatePayment(c)
}

func (siw *ServerInterfaceWrapper) QueryPayment(c *fiber.Ctx) error {
	return siw.Handler.QueryPayment(c)
}

func (siw *ServerInterfaceWrapper) PaymentCallback(c *fiber.Ctx) error {
	return siw.Handler.PaymentCallback(c)
}

func (siw *ServerInterfaceWrapper) PaymentValidation(c *fiber.Ctx) error {
	return siw.Handler.PaymentValidation(c)
}

func (siw *ServerInterfaceWrapper) GetPaymentStats(c *fiber.Ctx) error {
	return siw.Handler.GetPaymentStats(c)
}

// GetPayment operation middleware
func (siw *ServerInterfaceWrapper) GetPayment(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid format for parameter id")
	}
	return siw.Handler.GetPayment(c, id)
}

// RegisterHandlers creates http.Handler with routing matching the OpenAPI document.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", wrapper.GetPing)

	router.Get("/payments", wrapper.ListPayments)
	router.Post("/payments", wrapper.CreatePayment)
	router.Post("/payments/query", wrapper.QueryPayment)
	router.Post("/payments/callback", wrapper.PaymentCallback)
	router.Get("/payments/validation", wrapper.PaymentValidation)
	router.Get("/payments/stats", wrapper.GetPaymentStats)
	router.Get("/payments/:id", wrapper.GetPayment)
}
