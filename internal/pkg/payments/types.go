package payments

import (
	"context"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/daraja"
)

const (
	defaultRejectReason  = "STK Push request rejected by Daraja"
	defaultQueryReason   = "Unknown error"
	defaultFailureReason = "Payment failed"
)

// Gateway is the part of the Daraja client the lifecycle needs.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int64, reference, description string) (daraja.Response, error)
	QuerySTKPushStatus(ctx context.Context, checkoutRequestID string) (daraja.Response, error)
}

// OutcomeRecorder observes status changes. Implementations must not block for long
// and their failures never affect a payment.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, status models.PaymentStatus)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(context.Context, models.PaymentStatus) {}

type CreatePaymentInput struct {
	PhoneNumber            string
	Amount                 int64
	AccountReference       string
	TransactionDescription string
	PaymentMethod          string
	Notes                  *string
}

// ListQuery holds raw list filters. Invalid or empty values fall back to defaults.
type ListQuery struct {
	Page    int
	PerPage int
	UserID  string
	Status  string
}

type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}

type PaymentPage struct {
	Data []models.Payment `json:"data"`
	Meta PageMeta         `json:"meta"`
}
