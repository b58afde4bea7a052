package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to controllers to keep response shapes in one place
	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
)

// APIServer implements the ServerInterface
type APIServer struct {
	payments *controllers.PaymentController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(pc *controllers.PaymentController) *APIServer {
	return &APIServer{payments: pc}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) ListPayments(c *fiber.Ctx, params ListPaymentsParams) error {
	var q payments.ListQuery
	if params.Page != nil {
		q.Page = *params.Page
	}
	if params.PerPage != nil {
		q.PerPage = *params.PerPage
	}
	if params.UserId != nil {
		q.UserID = *params.UserId
	}
	if params.Status != nil {
		q.Status = *params.Status
	}
	return s.payments.HandleListPayments(c, q)
}

func (s *APIServer) CreatePayment(c *fiber.Ctx) error {
	return s.payments.HandleCreatePayment(c)
}

func (s *APIServer) QueryPayment(c *fiber.Ctx) error {
	return s.payments.HandleQueryPayment(c)
}

// PaymentCallback receives the Daraja STK result webhook.
func (s *APIServer) PaymentCallback(c *fiber.Ctx) error {
	return s.payments.HandleCallback(c)
}

func (s *APIServer) PaymentValidation(c *fiber.Ctx) error {
	return s.payments.HandleValidation(c)
}

func (s *APIServer) GetPaymentStats(c *fiber.Ctx) error {
	return s.payments.HandleStats(c)
}

func (s *APIServer) GetPayment(c *fiber.Ctx, id string) error {
	return s.payments.HandleGetPayment(c, id)
}
