package daraja

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

const transactionTypePayBill = "CustomerPayBillOnline"

// Field limits enforced by Daraja.
const (
	MaxAccountReference = 12
	MaxTransactionDesc  = 13
)

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// InitiateSTKPush sends a payment prompt to phone. The response code is not
// interpreted here; callers inspect ResponseCode themselves.
func (c *Client) InitiateSTKPush(ctx context.Context, phone string, amount int64, reference, description string) (Response, error) {
	msisdn, err := ValidatePhone(phone)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	timestamp := Timestamp(c.now())
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            amount,
		PartyA:            msisdn,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  Truncate(reference, MaxAccountReference),
		TransactionDesc:   Truncate(description, MaxTransactionDesc),
	}

	log.Infof("[Daraja] Initiating STK push: %d KES to %s", amount, msisdn)
	resp, err := c.postJSON(ctx, "stk push", stkPath, body)
	if err != nil {
		return nil, err
	}

	errCode := resp.String("errorCode")
	errMsg := resp.String("errorMessage")
	if errMsg == "" {
		errMsg = resp.String("error_message")
	}
	if errCode != "" || errMsg != "" {
		log.Warnf("[Daraja] STK push body indicates error: code=%s message=%s", errCode, errMsg)
	}

	log.Info("[Daraja] STK push initiated successfully")
	return resp, nil
}

// QuerySTKPushStatus asks Daraja for the current outcome of a push.
func (c *Client) QuerySTKPushStatus(ctx context.Context, checkoutRequestID string) (Response, error) {
	id := strings.TrimSpace(checkoutRequestID)
	if id == "" {
		return nil, apperror.Validation("checkout request id is required")
	}

	timestamp := Timestamp(c.now())
	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: id,
	}

	log.Infof("[Daraja] Querying STK push status for %s", id)
	resp, err := c.postJSON(ctx, "stk query", queryPath, body)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
