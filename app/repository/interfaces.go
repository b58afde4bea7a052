package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDuplicateCorrelationID = errors.New("correlation id already assigned to another payment")
)

// PaymentRepository is keyed storage for payments. It holds no business rules:
// callers decide which fields may change, the store only applies changes atomically.
type PaymentRepository interface {
	// Create assigns ID and timestamps, stores p and returns the stored record.
	Create(ctx context.Context, p *models.Payment) (*models.Payment, error)
	// Update runs fn against the current record and persists the result as one
	// atomic read-modify-write. UpdatedAt is refreshed, ID and CreatedAt are kept.
	Update(ctx context.Context, id string, fn func(p *models.Payment) error) (*models.Payment, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Payment, error)
	GetByMerchantRequestID(ctx context.Context, merchantRequestID string) (*models.Payment, error)
	// List returns matching payments newest first, sliced to the filter's page.
	List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)
	// Count returns the number of matching payments ignoring pagination.
	Count(ctx context.Context, filter PaymentFilter) (int64, error)
}

// PaymentFilter narrows List and Count. Zero values mean "no constraint".
type PaymentFilter struct {
	UserID  string
	Status  models.PaymentStatus
	Page    int
	PerPage int
}

// Normalize clamps Page to >= 1 and PerPage to [1, MaxPerPage], defaulting PerPage.
func (f PaymentFilter) Normalize() PaymentFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage == 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage < 1 {
		f.PerPage = 1
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

// Offset is the number of records skipped for the normalized page.
func (f PaymentFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Repositories struct holds all repository instances
type Repositories struct {
	Payment PaymentRepository
}

// NewRepositories creates a new instance of all repositories.
// A nil db selects the in-memory payment store.
func NewRepositories(db *gorm.DB) *Repositories {
	if db == nil {
		return &Repositories{Payment: NewMemoryPaymentRepository()}
	}
	return &Repositories{Payment: NewPaymentRepository(db)}
}
