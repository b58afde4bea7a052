package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
)

func newTestPayment(ref string) *models.Payment {
	return &models.Payment{
		Amount:                 100,
		PhoneNumber:            "254712345678",
		AccountReference:       ref,
		TransactionDescription: "Test",
		PaymentMethod:          models.PaymentMethodSTKPush,
		Status:                 models.PaymentStatusPending,
	}
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestRepo() *memoryPaymentRepository {
	r := NewMemoryPaymentRepository().(*memoryPaymentRepository)
	r.now = steppingClock()
	return r
}

func TestMemoryCreateAssignsIdentity(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	p, err := r.Create(ctx, newTestPayment("INV-1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ID, "pay_"))
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "INV-1", got.AccountReference)
}

func TestMemoryCreateRejectsInvalid(t *testing.T) {
	r := newTestRepo()
	p := newTestPayment("INV-1")
	p.Amount = 0

	_, err := r.Create(context.Background(), p)
	assert.Error(t, err)

	n, _ := r.Count(context.Background(), PaymentFilter{})
	assert.Equal(t, int64(0), n)
}

func TestMemoryReturnsCopies(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	p, err := r.Create(ctx, newTestPayment("INV-1"))
	require.NoError(t, err)
	p.Status = models.PaymentStatusFailed

	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
}

func TestMemoryNotFound(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	_, err := r.GetByID(ctx, "pay_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = r.GetByCheckoutRequestID(ctx, "ws_CO_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = r.GetByMerchantRequestID(ctx, "")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = r.Update(ctx, "pay_missing", func(*models.Payment) error { return nil })
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestMemoryUpdateIndexesCorrelationIDs(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	p, err := r.Create(ctx, newTestPayment("INV-1"))
	require.NoError(t, err)

	updated, err := r.Update(ctx, p.ID, func(p *models.Payment) error {
		p.Status = models.PaymentStatusProcessing
		p.MerchantRequestID = models.Ptr("29115-34620561-1")
		p.CheckoutRequestID = models.Ptr("ws_CO_191220191020363925")
		p.ID = "pay_hijack"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	byCheckout, err := r.GetByCheckoutRequestID(ctx, "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byCheckout.ID)

	byMerchant, err := r.GetByMerchantRequestID(ctx, "29115-34620561-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, byMerchant.Status)
}

func TestMemoryUpdateRejectsDuplicateCorrelation(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	a, err := r.Create(ctx, newTestPayment("A"))
	require.NoError(t, err)
	b, err := r.Create(ctx, newTestPayment("B"))
	require.NoError(t, err)

	_, err = r.Update(ctx, a.ID, func(p *models.Payment) error {
		p.CheckoutRequestID = models.Ptr("ws_CO_1")
		return nil
	})
	require.NoError(t, err)

	_, err = r.Update(ctx, b.ID, func(p *models.Payment) error {
		p.CheckoutRequestID = models.Ptr("ws_CO_1")
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicateCorrelationID)

	got, err := r.GetByCheckoutRequestID(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestMemoryUpdateAbortsOnError(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	p, err := r.Create(ctx, newTestPayment("INV-1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = r.Update(ctx, p.ID, func(p *models.Payment) error {
		p.Status = models.PaymentStatusFailed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := r.GetByID(ctx, p.ID)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
}

func TestMemoryListNewestFirstWithPagination(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	var ids []string
	for _, ref := range []string{"A", "B", "C"} {
		p, err := r.Create(ctx, newTestPayment(ref))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	all, err := r.List(ctx, PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	page, err := r.List(ctx, PaymentFilter{Page: 2, PerPage: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	past, err := r.List(ctx, PaymentFilter{Page: 9, PerPage: 1})
	require.NoError(t, err)
	assert.Empty(t, past)

	total, err := r.Count(ctx, PaymentFilter{Page: 2, PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestMemoryListFilters(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	mine := newTestPayment("MINE")
	mine.UserID = models.Ptr("user-1")
	_, err := r.Create(ctx, mine)
	require.NoError(t, err)

	other := newTestPayment("OTHER")
	other.UserID = models.Ptr("user-2")
	o, err := r.Create(ctx, other)
	require.NoError(t, err)
	_, err = r.Update(ctx, o.ID, func(p *models.Payment) error {
		p.Status = models.PaymentStatusFailed
		return nil
	})
	require.NoError(t, err)

	_, err = r.Create(ctx, newTestPayment("ANON"))
	require.NoError(t, err)

	byUser, err := r.List(ctx, PaymentFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "MINE", byUser[0].AccountReference)

	failed, err := r.Count(ctx, PaymentFilter{Status: models.PaymentStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestPaymentFilterNormalize(t *testing.T) {
	tests := []struct {
		name        string
		in          PaymentFilter
		wantPage    int
		wantPerPage int
	}{
		{"defaults", PaymentFilter{}, 1, DefaultPerPage},
		{"negative page", PaymentFilter{Page: -3, PerPage: 5}, 1, 5},
		{"negative per page", PaymentFilter{Page: 2, PerPage: -1}, 2, 1},
		{"too large", PaymentFilter{Page: 1, PerPage: 1000}, 1, MaxPerPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPerPage, got.PerPage)
		})
	}

	assert.Equal(t, 10, PaymentFilter{Page: 3, PerPage: 5}.Offset())
}

func TestMemoryConcurrentUpdatesAreSerialized(t *testing.T) {
	r := NewMemoryPaymentRepository()
	ctx := context.Background()

	p, err := r.Create(ctx, newTestPayment("INV-1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(ctx, p.ID, func(p *models.Payment) error {
				p.Amount++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Amount)
}
