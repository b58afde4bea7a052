package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
)

type memoryPaymentRepository struct {
	mu         sync.RWMutex
	payments   map[string]*models.Payment
	order      []string
	byCheckout map[string]string
	byMerchant map[string]string
	now        func() time.Time
}

// NewMemoryPaymentRepository creates an in-process payment repository.
// Records are cloned on the way in and out so callers never share state with the store.
func NewMemoryPaymentRepository() PaymentRepository {
	return &memoryPaymentRepository{
		payments:   make(map[string]*models.Payment),
		byCheckout: make(map[string]string),
		byMerchant: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *memoryPaymentRepository) Create(_ context.Context, p *models.Payment) (*models.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record := p.Clone()
	record.ID = newPaymentID()
	now := r.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := r.checkCorrelation(record); err != nil {
		return nil, err
	}
	r.payments[record.ID] = record
	r.order = append(r.order, record.ID)
	r.index(record)
	return record.Clone(), nil
}

func (r *memoryPaymentRepository) Update(_ context.Context, id string, fn func(p *models.Payment) error) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = r.now()

	if err := r.checkCorrelation(next); err != nil {
		return nil, err
	}
	r.unindex(current)
	r.payments[id] = next
	r.index(next)
	return next.Clone(), nil
}

func (r *memoryPaymentRepository) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (r *memoryPaymentRepository) GetByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byCheckout, checkoutRequestID)
}

func (r *memoryPaymentRepository) GetByMerchantRequestID(_ context.Context, merchantRequestID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byMerchant, merchantRequestID)
}

func (r *memoryPaymentRepository) List(_ context.Context, filter PaymentFilter) ([]models.Payment, error) {
	f := filter.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.matching(f)
	start := f.Offset()
	if start >= len(matched) {
		return []models.Payment{}, nil
	}
	end := start + f.PerPage
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]models.Payment, 0, end-start)
	for _, p := range matched[start:end] {
		out = append(out, *p.Clone())
	}
	return out, nil
}

func (r *memoryPaymentRepository) Count(_ context.Context, filter PaymentFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(filter))), nil
}

// matching returns filtered records newest first. Insertion order breaks CreatedAt ties.
func (r *memoryPaymentRepository) matching(f PaymentFilter) []*models.Payment {
	out := make([]*models.Payment, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		p := r.payments[r.order[i]]
		if f.UserID != "" && (p.UserID == nil || *p.UserID != f.UserID) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryPaymentRepository) lookup(idx map[string]string, key string) (*models.Payment, error) {
	if key == "" {
		return nil, ErrPaymentNotFound
	}
	id, ok := idx[key]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return r.payments[id].Clone(), nil
}

// checkCorrelation mirrors the unique indexes of the SQL schema.
func (r *memoryPaymentRepository) checkCorrelation(p *models.Payment) error {
	if p.CheckoutRequestID != nil {
		if owner, ok := r.byCheckout[*p.CheckoutRequestID]; ok && owner != p.ID {
			return ErrDuplicateCorrelationID
		}
	}
	if p.MerchantRequestID != nil {
		if owner, ok := r.byMerchant[*p.MerchantRequestID]; ok && owner != p.ID {
			return ErrDuplicateCorrelationID
		}
	}
	return nil
}

func (r *memoryPaymentRepository) index(p *models.Payment) {
	if p.CheckoutRequestID != nil && *p.CheckoutRequestID != "" {
		r.byCheckout[*p.CheckoutRequestID] = p.ID
	}
	if p.MerchantRequestID != nil && *p.MerchantRequestID != "" {
		r.byMerchant[*p.MerchantRequestID] = p.ID
	}
}

func (r *memoryPaymentRepository) unindex(p *models.Payment) {
	if p.CheckoutRequestID != nil {
		delete(r.byCheckout, *p.CheckoutRequestID)
	}
	if p.MerchantRequestID != nil {
		delete(r.byMerchant, *p.MerchantRequestID)
	}
}
