package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/daraja"
)

// ErrDuplicateCorrelation means the gateway returned correlation ids already held by another payment.
var ErrDuplicateCorrelation = errors.New("correlation id already assigned to another payment")

type Option func(*Service)

func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service drives a payment through PENDING -> PROCESSING -> COMPLETED/FAILED.
type Service struct {
	repo     repository.PaymentRepository
	gateway  Gateway
	recorder OutcomeRecorder
}

// NewService creates a lifecycle service from an injected store and gateway.
func NewService(repo repository.PaymentRepository, gateway Gateway, opts ...Option) *Service {
	s := &Service{repo: repo, gateway: gateway, recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePayment stores a PENDING payment and submits the push. The record always
// leaves this call PROCESSING or FAILED. When submission fails the FAILED record is
// returned together with the error.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput, ownerID *string) (*models.Payment, error) {
	phone := daraja.NormalizePhone(in.PhoneNumber)
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = models.PaymentMethodSTKPush
	}

	created, err := s.repo.Create(ctx, &models.Payment{
		UserID:                 ownerID,
		Amount:                 in.Amount,
		PhoneNumber:            phone,
		AccountReference:       daraja.Truncate(in.AccountReference, daraja.MaxAccountReference),
		TransactionDescription: daraja.Truncate(in.TransactionDescription, daraja.MaxTransactionDesc),
		PaymentMethod:          method,
		Notes:                  in.Notes,
		Status:                 models.PaymentStatusPending,
	})
	if err != nil {
		return nil, validationError(err)
	}
	log.Infof("[Payment] Creating payment %s for %s", created.ID, phone)

	// Writes after submission must land even if the caller gives up.
	writeCtx := context.WithoutCancel(ctx)

	resp, err := s.gateway.InitiateSTKPush(ctx, phone, created.Amount, created.AccountReference, created.TransactionDescription)
	if err != nil {
		log.Errorf("[Payment] Failed to initiate STK push for %s: %v", created.ID, err)
		return s.failCreate(writeCtx, created, err.Error(), nil, err)
	}

	merchantID := resp.String("MerchantRequestID")
	checkoutID := resp.String("CheckoutRequestID")
	if err := s.ensureCorrelationFree(writeCtx, created.ID, merchantID, checkoutID); err != nil {
		gwErr := apperror.Gateway(err, "stk push returned correlation ids of another payment")
		return s.failCreate(writeCtx, created, gwErr.Error(), resp, gwErr)
	}

	accepted := resp.String("ResponseCode") == daraja.ResponseCodeAccepted
	var reason string
	if !accepted {
		reason = firstNonEmpty(resp.String("ResponseDescription"), resp.String("CustomerMessage"), defaultRejectReason)
	}

	updated, err := s.repo.Update(writeCtx, created.ID, func(p *models.Payment) error {
		p.GatewayResponse = models.CloneJSONMap(resp)
		setOnce(&p.MerchantRequestID, merchantID)
		setOnce(&p.CheckoutRequestID, checkoutID)
		if accepted {
			return transition(p, models.PaymentStatusProcessing)
		}
		p.FailureReason = &reason
		return transition(p, models.PaymentStatusFailed)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateCorrelationID) {
			err = apperror.Gateway(ErrDuplicateCorrelation, "stk push returned correlation ids of another payment")
		}
		log.Errorf("[Payment] Failed to record STK push result for %s: %v", created.ID, err)
		return s.failCreate(writeCtx, created, err.Error(), resp, err)
	}

	if accepted {
		log.Infof("[Payment] STK push initiated for payment %s", updated.ID)
	} else {
		log.Warnf("[Payment] STK push rejected for %s: %s", updated.ID, reason)
	}
	s.recorder.RecordOutcome(writeCtx, updated.Status)
	return updated, nil
}

// failCreate marks a freshly created payment FAILED and returns it with cause.
func (s *Service) failCreate(ctx context.Context, created *models.Payment, reason string, resp daraja.Response, cause error) (*models.Payment, error) {
	failed, err := s.repo.Update(ctx, created.ID, func(p *models.Payment) error {
		if resp != nil && p.GatewayResponse == nil {
			p.GatewayResponse = models.CloneJSONMap(resp)
		}
		p.FailureReason = &reason
		return transition(p, models.PaymentStatusFailed)
	})
	if err != nil {
		log.Errorf("[Payment] Could not mark payment %s as failed: %v", created.ID, err)
		return created, cause
	}
	s.recorder.RecordOutcome(ctx, failed.Status)
	return failed, cause
}

// QueryPaymentStatus asks the gateway about a push and records the answer. The query
// is advisory: it never changes status, a non-zero result only sets the failure reason.
func (s *Service) QueryPaymentStatus(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	id := strings.TrimSpace(checkoutRequestID)
	if id == "" {
		return nil, apperror.Validation("checkoutRequestId is required")
	}

	payment, err := s.repo.GetByCheckoutRequestID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperror.NotFound("payment with checkout request ID %s not found", id)
		}
		return nil, err
	}
	log.Infof("[Payment] Querying status for payment %s", payment.ID)

	resp, err := s.gateway.QuerySTKPushStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	succeeded := resp.String("ResultCode") == daraja.ResponseCodeAccepted
	description := firstNonEmpty(resp.String("ResultDesc"), defaultQueryReason)

	updated, err := s.repo.Update(context.WithoutCancel(ctx), payment.ID, func(p *models.Payment) error {
		merged := models.CloneJSONMap(p.GatewayResponse)
		if merged == nil {
			merged = datatypes.JSONMap{}
		}
		merged["queryResponse"] = map[string]interface{}(models.CloneJSONMap(resp))
		p.GatewayResponse = merged

		if !succeeded && p.Status != models.PaymentStatusCompleted {
			p.FailureReason = &description
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if succeeded {
		log.Infof("[Payment] Query successful for %s", updated.ID)
	} else {
		log.Warnf("[Payment] Query failed for %s: %s", updated.ID, description)
	}
	return updated, nil
}

// HandleCallback applies a Daraja webhook. The raw payload is always stored; a
// callback that would move a payment backwards or out of a terminal state leaves
// the status as it is.
func (s *Service) HandleCallback(ctx context.Context, payload []byte) (*models.Payment, error) {
	cb, err := daraja.ParseCallback(payload)
	if err != nil {
		return nil, err
	}
	if cb.MerchantRequestID == "" && cb.CheckoutRequestID == "" {
		return nil, apperror.Validation("callback missing merchantRequestId or checkoutRequestId")
	}

	payment, err := s.findForCallback(ctx, cb)
	if err != nil {
		return nil, err
	}
	log.Infof("[Payment] Processing callback for payment %s", payment.ID)

	target := models.PaymentStatusFailed
	if cb.Succeeded() {
		target = models.PaymentStatusCompleted
	}

	var applied bool
	var previous models.PaymentStatus
	updated, err := s.repo.Update(context.WithoutCancel(ctx), payment.ID, func(p *models.Payment) error {
		p.GatewayCallback = models.CloneJSONMap(cb.Raw)
		previous = p.Status
		applied = p.Status.CanTransitionTo(target)
		if !applied {
			return nil
		}

		p.Status = target
		if target == models.PaymentStatusCompleted {
			applyMetadata(p, cb)
			p.FailureReason = nil
			return nil
		}
		reason := firstNonEmpty(cb.ResultDesc, defaultFailureReason)
		p.FailureReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		log.Warnf("[Payment] Ignoring status change %s -> %s for payment %s, callback stored", previous, target, updated.ID)
		return updated, nil
	}
	if target == models.PaymentStatusCompleted {
		log.Infof("[Payment] Payment %s completed", updated.ID)
	} else {
		log.Warnf("[Payment] Payment %s failed: %s", updated.ID, cb.ResultDesc)
	}
	s.recorder.RecordOutcome(ctx, updated.Status)
	return updated, nil
}

// findForCallback prefers the merchant id and falls back to the checkout id.
func (s *Service) findForCallback(ctx context.Context, cb *daraja.Callback) (*models.Payment, error) {
	if cb.MerchantRequestID != "" {
		p, err := s.repo.GetByMerchantRequestID(ctx, cb.MerchantRequestID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, err
		}
	}
	if cb.CheckoutRequestID != "" {
		p, err := s.repo.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, err
		}
	}

	log.Warnf("[Payment] Callback for unknown payment: merchant=%q checkout=%q", cb.MerchantRequestID, cb.CheckoutRequestID)
	return nil, apperror.NotFound("payment not found for callback")
}

func applyMetadata(p *models.Payment, cb *daraja.Callback) {
	if v, ok := cb.Item(daraja.ItemReceiptNumber); ok {
		p.MpesaReceiptNumber = &v
	}
	if v, ok := cb.Item(daraja.ItemTransactionDate); ok {
		p.TransactionDate = &v
	}
	if v, ok := cb.Item(daraja.ItemPhoneNumber); ok {
		p.ConfirmedPhoneNumber = &v
	}
	if amount, ok := cb.Amount(); ok {
		// TODO: fail reconciliation on amount mismatch once a mismatch status exists.
		if amount != p.Amount {
			log.Warnf("[Payment] Payment %s confirmed amount %d differs from requested %d", p.ID, amount, p.Amount)
		}
		p.ConfirmedAmount = &amount
		p.Amount = amount
	}
}

func (s *Service) FindPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperror.NotFound("payment %s not found", id)
		}
		return nil, err
	}
	return p, nil
}

// FindAllPayments lists payments newest first. An unknown status filter is ignored.
func (s *Service) FindAllPayments(ctx context.Context, q ListQuery) (*PaymentPage, error) {
	status, ok := models.ParsePaymentStatus(strings.TrimSpace(q.Status))
	if !ok {
		status = ""
	}
	filter := repository.PaymentFilter{
		UserID:  strings.TrimSpace(q.UserID),
		Status:  status,
		Page:    q.Page,
		PerPage: q.PerPage,
	}.Normalize()

	data, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []models.Payment{}
	}

	return &PaymentPage{
		Data: data,
		Meta: PageMeta{
			Total:      total,
			Page:       filter.Page,
			PerPage:    filter.PerPage,
			TotalPages: int((total + int64(filter.PerPage) - 1) / int64(filter.PerPage)),
		},
	}, nil
}

func (s *Service) ensureCorrelationFree(ctx context.Context, id, merchantID, checkoutID string) error {
	lookups := []struct {
		key string
		get func(context.Context, string) (*models.Payment, error)
	}{
		{merchantID, s.repo.GetByMerchantRequestID},
		{checkoutID, s.repo.GetByCheckoutRequestID},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		other, err := l.get(ctx, l.key)
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			continue
		case err != nil:
			return err
		case other.ID != id:
			return ErrDuplicateCorrelation
		}
	}
	return nil
}

func transition(p *models.Payment, next models.PaymentStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("payment %s: invalid status transition %s -> %s", p.ID, p.Status, next)
	}
	p.Status = next
	return nil
}

// setOnce writes v into an unset correlation id. Set ids are never replaced.
func setOnce(dst **string, v string) {
	if *dst != nil || v == "" {
		return
	}
	*dst = &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
	}
	return apperror.Validation("invalid payment: %s", strings.Join(msgs, ", "))
}
