package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/pkg/enums"
)

// Type identifies a payment lifecycle event on the wire.
type Type string

const (
	TypePaymentInitialized Type = "payment.initialized"
	TypePaymentCaptured    Type = "payment.captured"
	TypePaymentRefunded    Type = "payment.refunded"
	TypePaymentFailed      Type = "payment.failed"
)

// Envelope is the stable payload structure published to the payment events topic.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps data in a versioned envelope, stamping id and time.
func NewEnvelope(t Type, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// PaymentTransactionEvent carries the transaction snapshot for every
// lifecycle event type.
type PaymentTransactionEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	MerchantID    uuid.UUID               `json:"merchant_id"`
	OrderID       uuid.UUID               `json:"order_id"`
	CustomerID    uuid.UUID               `json:"customer_id"`
	Status        enums.TransactionStatus `json:"status"`
	AmountCents   int64                   `json:"amount_cents"`
	RefundedCents int64                   `json:"refunded_cents"`
	GatewayRef    string                  `json:"gateway_ref,omitempty"`
	FailureReason string                  `json:"failure_reason,omitempty"`
}
