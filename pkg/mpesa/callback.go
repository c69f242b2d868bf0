package mpesa

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Metadata item names the gateway uses in success callbacks.
const (
	metadataReceiptNumber = "MpesaReceiptNumber"
	metadataAmount        = "Amount"
	metadataPhoneNumber   = "PhoneNumber"
	metadataTransactionAt = "TransactionDate"
)

// CallbackEnvelope is the outer JSON body delivered to the callback URL.
type CallbackEnvelope struct {
	Body CallbackBody `json:"Body"`
}

type CallbackBody struct {
	StkCallback *StkCallback `json:"stkCallback"`
}

// StkCallback is the gateway's resolution of one push request, matched back
// to the originating order through CheckoutRequestID.
type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes and structurally validates a callback body. A body
// without the nested stkCallback element or a correlation id is malformed.
func ParseCallback(raw []byte) (*StkCallback, error) {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode callback envelope: %w", err)
	}
	callback := envelope.Body.StkCallback
	if callback == nil {
		return nil, fmt.Errorf("callback envelope missing stkCallback body")
	}
	if callback.CheckoutRequestID == "" {
		return nil, fmt.Errorf("callback missing CheckoutRequestID")
	}
	return callback, nil
}

// Succeeded reports whether the gateway resolved the payment successfully.
func (c *StkCallback) Succeeded() bool {
	return c.ResultCode == 0
}

// ReceiptNumber returns the gateway receipt id on success callbacks.
func (c *StkCallback) ReceiptNumber() string {
	return c.metadataString(metadataReceiptNumber)
}

// PayerPhone returns the paying MSISDN on success callbacks.
func (c *StkCallback) PayerPhone() string {
	return c.metadataString(metadataPhoneNumber)
}

// TransactionDate returns the raw gateway transaction timestamp.
func (c *StkCallback) TransactionDate() string {
	return c.metadataString(metadataTransactionAt)
}

// AmountCents returns the collected amount in cents, or 0 when absent.
// Decimal arithmetic avoids float truncation on fractional amounts.
func (c *StkCallback) AmountCents() int {
	raw := c.metadataString(metadataAmount)
	if raw == "" {
		return 0
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return int(amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// metadataString finds a named metadata item, tolerating the gateway's mix of
// string and numeric value encodings.
func (c *StkCallback) metadataString(name string) string {
	if c == nil || c.CallbackMetadata == nil {
		return ""
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != name {
			continue
		}
		var asString string
		if err := json.Unmarshal(item.Value, &asString); err == nil {
			return asString
		}
		var asNumber json.Number
		if err := json.Unmarshal(item.Value, &asNumber); err == nil {
			return asNumber.String()
		}
	}
	return ""
}
