package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
)

const (
	DefaultStaleAfter = 2 * time.Minute
	queryTimeout      = 20 * time.Second
)

// Payments is the slice of the payment service the reconciler drives.
type Payments interface {
	FindAllPayments(ctx context.Context, q payments.ListQuery) (*payments.PaymentPage, error)
	QueryPaymentStatus(ctx context.Context, checkoutRequestID string) (*models.Payment, error)
}

// Reconciler periodically queries Daraja for payments that stayed PROCESSING
// longer than staleAfter, for callbacks that never arrived.
type Reconciler struct {
	svc        Payments
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func New(svc Payments, interval, staleAfter time.Duration) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		svc:        svc,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// FromEnv reads RECONCILE_INTERVAL and RECONCILE_AFTER. An empty or zero
// interval disables the background loop.
func FromEnv(svc Payments) *Reconciler {
	interval, err := time.ParseDuration(env.GetEnv("RECONCILE_INTERVAL", "0s"))
	if err != nil {
		log.Warnf("[Reconciler] Invalid RECONCILE_INTERVAL, disabling: %v", err)
		interval = 0
	}
	staleAfter, err := time.ParseDuration(env.GetEnv("RECONCILE_AFTER", DefaultStaleAfter.String()))
	if err != nil {
		staleAfter = DefaultStaleAfter
	}
	return New(svc, interval, staleAfter)
}

func (r *Reconciler) Enabled() bool {
	return r.interval > 0
}

// Start launches the background loop. It is a no-op when disabled or already running.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running || !r.Enabled() {
		return
	}

	r.stopCh = make(chan struct{})
	r.running = true
	r.ticker = time.NewTicker(r.interval)
	r.wg.Add(1)
	go r.worker(r.ticker, r.stopCh)

	log.Infof("[Reconciler] Started (interval %s, stale after %s)", r.interval, r.staleAfter)
}

func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.ticker.Stop()
	close(r.stopCh)
	r.stopCh = nil
	r.running = false
	r.wg.Wait()

	log.Info("[Reconciler] Stopped")
}

func (r *Reconciler) worker(ticker *time.Ticker, stopCh chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			if n, err := r.RunOnce(ctx); err != nil {
				log.Errorf("[Reconciler] Run failed after %d queries: %v", n, err)
			} else if n > 0 {
				log.Infof("[Reconciler] Queried %d stale payments", n)
			}
			cancel()
		case <-stopCh:
			return
		}
	}
}

// RunOnce queries every stale PROCESSING payment once and returns how many
// queries were sent. Individual query failures are logged and skipped.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.staleCheckoutIDs(ctx)
	if err != nil {
		return 0, err
	}

	queried := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return queried, err
		}
		qctx, cancel := context.WithTimeout(ctx, queryTimeout)
		_, err := r.svc.QueryPaymentStatus(qctx, id)
		cancel()
		queried++
		if err != nil {
			log.Warnf("[Reconciler] Query for %s failed: %v", id, err)
		}
	}
	return queried, nil
}

func (r *Reconciler) staleCheckoutIDs(ctx context.Context) ([]string, error) {
	cutoff := r.now().Add(-r.staleAfter)
	var ids []string

	for page := 1; ; page++ {
		res, err := r.svc.FindAllPayments(ctx, payments.ListQuery{
			Page:    page,
			PerPage: repository.MaxPerPage,
			Status:  string(models.PaymentStatusProcessing),
		})
		if err != nil {
			return nil, err
		}
		for _, p := range res.Data {
			if p.CheckoutRequestID == nil || *p.CheckoutRequestID == "" {
				continue
			}
			if p.UpdatedAt.Before(cutoff) {
				ids = append(ids, *p.CheckoutRequestID)
			}
		}
		if page >= res.Meta.TotalPages {
			return ids, nil
		}
	}
}
