package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PayFox/app/models"
)

func newPaymentID() string {
	return "pay_" + uuid.NewString()
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment repository backed by GORM.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	record := p.Clone()
	now := time.Now().UTC()
	record.ID = newPaymentID()
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, translateGormError(err)
	}
	return record, nil
}

func (r *paymentRepository) Update(ctx context.Context, id string, fn func(p *models.Payment) error) (*models.Payment, error) {
	var updated models.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&current).Error; err != nil {
			return translateGormError(err)
		}

		createdAt := current.CreatedAt
		if err := fn(&current); err != nil {
			return err
		}
		current.ID = id
		current.CreatedAt = createdAt
		current.UpdatedAt = time.Now().UTC()

		if err := tx.Save(&current).Error; err != nil {
			return translateGormError(err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *paymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	return r.first(ctx, "checkout_request_id = ?", checkoutRequestID)
}

func (r *paymentRepository) GetByMerchantRequestID(ctx context.Context, merchantRequestID string) (*models.Payment, error) {
	return r.first(ctx, "merchant_request_id = ?", merchantRequestID)
}

func (r *paymentRepository) first(ctx context.Context, query string, arg string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where(query, arg).First(&p).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &p, nil
}

func (r *paymentRepository) List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error) {
	f := filter.Normalize()
	var payments []models.Payment
	err := r.filtered(ctx, f).
		Order("created_at DESC").
		Offset(f.Offset()).
		Limit(f.PerPage).
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) Count(ctx context.Context, filter PaymentFilter) (int64, error) {
	var total int64
	err := r.filtered(ctx, filter).Count(&total).Error
	return total, err
}

func (r *paymentRepository) filtered(ctx context.Context, f PaymentFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	return q
}

func translateGormError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrPaymentNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateCorrelationID
	default:
		return err
	}
}
