package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// PaymentMethodSTKPush is the default payment method tag for Daraja STK pushes.
const PaymentMethodSTKPush = "MPESA_STK_PUSH"

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// paymentTransitions lists every allowed status change. Terminal states have no entry.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
}

// ParsePaymentStatus returns the status for s and whether it is a known status.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	status := PaymentStatus(s)
	switch status {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed:
		return status, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransitionTo reports whether s -> next is a listed transition.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment is a single STK push request and everything the gateway told us about it.
type Payment struct {
	ID                     string        `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID                 *string       `gorm:"type:varchar(191);index" json:"user_id"`
	Amount                 int64         `gorm:"not null" json:"amount" validate:"gte=1,lte=70000"`
	PhoneNumber            string        `gorm:"type:varchar(20);not null" json:"phone_number" validate:"required"`
	AccountReference       string        `gorm:"type:varchar(12);not null" json:"account_reference" validate:"required,max=12"`
	TransactionDescription string        `gorm:"type:varchar(13);not null" json:"transaction_description" validate:"required,max=13"`
	PaymentMethod          string        `gorm:"type:varchar(50);not null;default:'MPESA_STK_PUSH'" json:"payment_method"`
	Notes                  *string       `gorm:"type:text" json:"notes"`
	Status                 PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	// Correlation ids, written once from the STK push response.
	MerchantRequestID *string `gorm:"type:varchar(191);uniqueIndex" json:"merchantRequestId"`
	CheckoutRequestID *string `gorm:"type:varchar(191);uniqueIndex" json:"checkoutRequestId"`

	// Outcome, written by query or callback reconciliation.
	MpesaReceiptNumber   *string `gorm:"type:varchar(64)" json:"mpesaReceiptNumber"`
	TransactionDate      *string `gorm:"type:varchar(20)" json:"transactionDate"`
	ConfirmedPhoneNumber *string `gorm:"type:varchar(20)" json:"phoneNumber"`
	ConfirmedAmount      *int64  `json:"confirmed_amount"`
	FailureReason        *string `gorm:"type:text" json:"failure_reason"`

	// Raw audit trail, stored verbatim.
	GatewayResponse datatypes.JSONMap `json:"daraja_response"`
	GatewayCallback datatypes.JSONMap `json:"daraja_callback"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) Validate() error {
	v := validator.New()
	return v.Struct(p)
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	c.UserID = clonePtr(p.UserID)
	c.Notes = clonePtr(p.Notes)
	c.MerchantRequestID = clonePtr(p.MerchantRequestID)
	c.CheckoutRequestID = clonePtr(p.CheckoutRequestID)
	c.MpesaReceiptNumber = clonePtr(p.MpesaReceiptNumber)
	c.TransactionDate = clonePtr(p.TransactionDate)
	c.ConfirmedPhoneNumber = clonePtr(p.ConfirmedPhoneNumber)
	c.ConfirmedAmount = clonePtr(p.ConfirmedAmount)
	c.FailureReason = clonePtr(p.FailureReason)
	c.GatewayResponse = CloneJSONMap(p.GatewayResponse)
	c.GatewayCallback = CloneJSONMap(p.GatewayCallback)
	return &c
}

// CloneJSONMap deep-copies nested maps and slices of a decoded JSON object.
func CloneJSONMap(m map[string]interface{}) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(CloneJSONMap(val))
	case datatypes.JSONMap:
		return CloneJSONMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return val
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
