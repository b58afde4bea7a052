package daraja

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

// Metadata item names sent in CallbackMetadata.Item.
const (
	ItemReceiptNumber   = "MpesaReceiptNumber"
	ItemTransactionDate = "TransactionDate"
	ItemPhoneNumber     = "PhoneNumber"
	ItemAmount          = "Amount"
)

// Callback is the flattened result of an STK push webhook. Every field besides Raw is
// optional: the webhook shape differs between success, cancellation and timeout.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        string
	HasResultCode     bool
	ResultDesc        string
	// Items is the flattened CallbackMetadata.Item list, nil when absent.
	Items map[string]interface{}
	Raw   map[string]interface{}
}

// Succeeded reports a result code of "0", whether it was sent as number or string.
func (cb *Callback) Succeeded() bool {
	return cb.HasResultCode && cb.ResultCode == ResponseCodeAccepted
}

// Item returns a metadata value as text.
func (cb *Callback) Item(name string) (string, bool) {
	v, ok := cb.Items[name]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v)
}

// Amount returns the metadata amount rounded to whole shillings.
func (cb *Callback) Amount() (int64, bool) {
	s, ok := cb.Item(ItemAmount)
	if !ok {
		return 0, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}

type callbackEnvelope struct {
	Body json.RawMessage `json:"Body"`
}

type callbackBody struct {
	STKCallback json.RawMessage `json:"stkCallback"`
}

type stkCallback struct {
	MerchantRequestID interface{}     `json:"MerchantRequestID"`
	CheckoutRequestID interface{}     `json:"CheckoutRequestID"`
	ResultCode        interface{}     `json:"ResultCode"`
	ResultDesc        interface{}     `json:"ResultDesc"`
	CallbackMetadata  json.RawMessage `json:"CallbackMetadata"`
}

type callbackMetadata struct {
	Item json.RawMessage `json:"Item"`
}

type metadataItem struct {
	Name  interface{}     `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback unwraps Body -> stkCallback -> CallbackMetadata -> Item. A missing or
// malformed layer ends the walk and the fields gathered so far are returned.
// Only a payload that is not a JSON object is an error.
func ParseCallback(payload []byte) (*Callback, error) {
	var raw map[string]interface{}
	if !decodeObject(payload, &raw) {
		return nil, apperror.Validation("invalid callback data format")
	}
	cb := &Callback{Raw: raw}

	var env callbackEnvelope
	if !decodeObject(payload, &env) {
		return cb, nil
	}
	var body callbackBody
	if !decodeObject(env.Body, &body) {
		return cb, nil
	}
	var stk stkCallback
	if !decodeObject(body.STKCallback, &stk) {
		return cb, nil
	}

	cb.MerchantRequestID, _ = stringify(stk.MerchantRequestID)
	cb.CheckoutRequestID, _ = stringify(stk.CheckoutRequestID)
	cb.ResultCode, cb.HasResultCode = stringify(stk.ResultCode)
	cb.ResultDesc, _ = stringify(stk.ResultDesc)

	var meta callbackMetadata
	if !decodeObject(stk.CallbackMetadata, &meta) {
		return cb, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(meta.Item, &items); err != nil {
		return cb, nil
	}

	fields := make(map[string]interface{}, len(items))
	for _, rawItem := range items {
		var item metadataItem
		if !decodeObject(rawItem, &item) {
			continue
		}
		name, ok := item.Name.(string)
		if !ok || len(item.Value) == 0 {
			continue
		}
		var value interface{}
		dec := json.NewDecoder(bytes.NewReader(item.Value))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			continue
		}
		fields[name] = value
	}
	if len(fields) > 0 {
		cb.Items = fields
	}
	return cb, nil
}

// decodeObject decodes raw into v only when raw is a JSON object.
func decodeObject(raw []byte, v interface{}) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	return dec.Decode(v) == nil
}
