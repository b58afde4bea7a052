package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	requestTimeout    = 20 * time.Second
	maxIdempotencyKey = 255
	minAmount         = 1
	maxAmount         = 70000

	// IdempotencyLockTTL bounds an in-progress Idempotency-Key claim. It outlasts
	// requestTimeout so a retry cannot claim the key while the first create runs.
	IdempotencyLockTTL = requestTimeout + 10*time.Second
)

var phonePattern = regexp.MustCompile(`^(\+?254|0)?[17]\d{8}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// PaymentService is the lifecycle the payment endpoints drive.
type PaymentService interface {
	CreatePayment(ctx context.Context, in payments.CreatePaymentInput, ownerID *string) (*models.Payment, error)
	QueryPaymentStatus(ctx context.Context, checkoutRequestID string) (*models.Payment, error)
	HandleCallback(ctx context.Context, payload []byte) (*models.Payment, error)
	FindPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	FindAllPayments(ctx context.Context, q payments.ListQuery) (*payments.PaymentPage, error)
}

// IdempotencyStore deduplicates create requests carrying an Idempotency-Key.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (paymentID string, claimed bool, err error)
	Complete(ctx context.Context, key, paymentID string) error
	Release(ctx context.Context, key string) error
}

// StatsSource exposes the outcome counters.
type StatsSource interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

type PaymentController struct {
	service     PaymentService
	idempotency IdempotencyStore
	stats       StatsSource
}

// NewPaymentController wires the payment endpoints. idempotency and stats may be nil.
func NewPaymentController(service PaymentService, idempotency IdempotencyStore, stats StatsSource) *PaymentController {
	return &PaymentController{service: service, idempotency: idempotency, stats: stats}
}

type createPaymentRequest struct {
	PhoneNumber            string          `json:"phone_number" validate:"required,msisdn"`
	Amount                 json.RawMessage `json:"amount" validate:"required"`
	AccountReference       string          `json:"account_reference" validate:"required,max=12"`
	TransactionDescription string          `json:"transaction_description" validate:"required,max=13"`
	PaymentMethod          string          `json:"payment_method" validate:"omitempty,max=50"`
	Notes                  *string         `json:"notes" validate:"omitempty,max=500"`
}

type queryPaymentRequest struct {
	CheckoutRequestID string `json:"checkoutRequestId" validate:"required"`
}

// HandleCreatePayment initiates an STK push.
func (pc *PaymentController) HandleCreatePayment(c *fiber.Ctx) error {
	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := validate.Struct(req); err != nil {
		return respondError(c, fiber.StatusBadRequest, validationMessage(err))
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	key := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKey {
		return respondError(c, fiber.StatusBadRequest, "Idempotency-Key is too long")
	}
	if key != "" && pc.idempotency != nil {
		existingID, claimed, err := pc.idempotency.Claim(ctx, key)
		switch {
		case errors.Is(err, cache.ErrIdempotencyInProgress):
			return respondError(c, fiber.StatusConflict, err.Error())
		case err != nil:
			// Redis trouble must not block payments.
			log.Warnf("[Payment] Idempotency claim failed, continuing without: %v", err)
			key = ""
		case !claimed:
			payment, err := pc.service.FindPaymentByID(ctx, existingID)
			if err != nil {
				return respondServiceError(c, err)
			}
			c.Set("Idempotent-Replayed", "true")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "data": payment})
		}
	} else {
		key = ""
	}

	payment, err := pc.service.CreatePayment(ctx, payments.CreatePaymentInput{
		PhoneNumber:            req.PhoneNumber,
		Amount:                 amount,
		AccountReference:       req.AccountReference,
		TransactionDescription: req.TransactionDescription,
		PaymentMethod:          req.PaymentMethod,
		Notes:                  req.Notes,
	}, usercontext.OwnerID(c))

	if key != "" {
		pc.settleIdempotencyKey(key, payment)
	}

	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": payment})
}

func (pc *PaymentController) settleIdempotencyKey(key string, payment *models.Payment) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var err error
	if payment != nil {
		err = pc.idempotency.Complete(ctx, key, payment.ID)
	} else {
		err = pc.idempotency.Release(ctx, key)
	}
	if err != nil {
		log.Warnf("[Payment] Failed to settle idempotency key: %v", err)
	}
}

// HandleQueryPayment asks Daraja for the status of a push.
func (pc *PaymentController) HandleQueryPayment(c *fiber.Ctx) error {
	var req queryPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.CheckoutRequestID = strings.TrimSpace(req.CheckoutRequestID)
	if err := validate.Struct(req); err != nil {
		return respondError(c, fiber.StatusBadRequest, validationMessage(err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	payment, err := pc.service.QueryPaymentStatus(ctx, req.CheckoutRequestID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// HandleCallback is the Daraja webhook. It always answers 200 so Daraja stops retrying.
func (pc *PaymentController) HandleCallback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	payment, err := pc.service.HandleCallback(ctx, c.Body())
	if err != nil {
		log.Errorf("[Payment] Callback error: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ResultCode": 1,
			"ResultDesc": callbackErrorMessage(err),
		})
	}
	log.Infof("[Payment] Callback processed for %s (%s)", payment.ID, payment.Status)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ResultCode": 0,
		"ResultDesc": "Success",
	})
}

// HandleListPayments returns one page of payments, newest first.
func (pc *PaymentController) HandleListPayments(c *fiber.Ctx, q payments.ListQuery) error {
	page, err := pc.service.FindAllPayments(c.UserContext(), q)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": page.Data, "meta": page.Meta})
}

// HandleValidation answers the Daraja C2B validation URL.
func (pc *PaymentController) HandleValidation(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ResultCode": 0,
		"ResultDesc": "Validation passed",
	})
}

func (pc *PaymentController) HandleStats(c *fiber.Ctx) error {
	if pc.stats == nil {
		return c.JSON(fiber.Map{"success": true, "data": map[string]int64{}})
	}
	snapshot, err := pc.stats.Snapshot(c.UserContext())
	if err != nil {
		log.Errorf("[Payment] Failed to read counters: %v", err)
		return respondError(c, fiber.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(fiber.Map{"success": true, "data": snapshot})
}

func (pc *PaymentController) HandleGetPayment(c *fiber.Ctx, id string) error {
	payment, err := pc.service.FindPaymentByID(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// parseAmount accepts a JSON number or numeric string holding a whole number of KES.
func parseAmount(raw json.RawMessage) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, errors.New("amount is required")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return checkAmountRange(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("amount must be a number")
	}
	switch {
	case f < minAmount:
		return 0, errors.New("amount must be at least 1 KES")
	case f > maxAmount:
		return 0, errors.New("amount must be at most 70,000 KES")
	case f != math.Trunc(f):
		return 0, errors.New("amount must be a whole number")
	}
	return int64(f), nil
}

func checkAmountRange(v int64) (int64, error) {
	switch {
	case v < minAmount:
		return 0, errors.New("amount must be at least 1 KES")
	case v > maxAmount:
		return 0, errors.New("amount must be at most 70,000 KES")
	}
	return v, nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s max %s characters", field, fe.Param()))
		case "msisdn":
			msgs = append(msgs, "Invalid phone number. Use 254XXXXXXXXX or 07XXXXXXXX")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

var jsonFieldNames = map[string]string{
	"PhoneNumber":            "phone_number",
	"Amount":                 "amount",
	"AccountReference":       "account_reference",
	"TransactionDescription": "transaction_description",
	"PaymentMethod":          "payment_method",
	"Notes":                  "notes",
	"CheckoutRequestID":      "checkoutRequestId",
}

func jsonFieldName(field string) string {
	if name, ok := jsonFieldNames[field]; ok {
		return name
	}
	return field
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": message})
}

// respondServiceError maps lifecycle errors to HTTP statuses without leaking internals.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return respondError(c, fiber.StatusBadRequest, err.Error())
	case apperror.KindNotFound:
		return respondError(c, fiber.StatusNotFound, err.Error())
	case apperror.KindAuth, apperror.KindGateway:
		return respondError(c, fiber.StatusBadGateway, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return respondError(c, fiber.StatusGatewayTimeout, "Upstream request timed out")
	}
	log.Errorf("[Payment] Unexpected error: %v", err)
	return respondError(c, fiber.StatusInternalServerError, "Internal server error")
}

func callbackErrorMessage(err error) string {
	if kind := apperror.KindOf(err); kind != "" {
		return err.Error()
	}
	return "Callback processing failed"
}
