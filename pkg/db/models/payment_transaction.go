package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/pkg/enums"
)

// PaymentTransaction records the lifecycle of a single payment attempt.
// Version backs optimistic locking so concurrent capture/refund calls on the
// same transaction cannot both win.
type PaymentTransaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID    uuid.UUID               `gorm:"column:merchant_id;type:uuid;not null;index"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	CustomerID    uuid.UUID               `gorm:"column:customer_id;type:uuid;not null"`
	ModuleCode    string                  `gorm:"column:module_code;not null"`
	Status        enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'initialized'"`
	AmountCents   int64                   `gorm:"column:amount_cents;not null"`
	Currency      string                  `gorm:"column:currency;not null;default:'USD'"`
	RefundedCents int64                   `gorm:"column:refunded_cents;not null;default:0"`
	GatewayRef    *string                 `gorm:"column:gateway_ref"`
	FailureReason *string                 `gorm:"column:failure_reason"`
	CardLast4     *string                 `gorm:"column:card_last4"`
	CardBrand     *string                 `gorm:"column:card_brand"`
	SourceToken   *string                 `gorm:"column:source_token"`
	Version       int64                   `gorm:"column:version;not null;default:1"`
	CapturedAt    *time.Time              `gorm:"column:captured_at"`
	RefundedAt    *time.Time              `gorm:"column:refunded_at"`
	FailedAt      *time.Time              `gorm:"column:failed_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// RemainingCents is the captured amount still available for refund.
func (t PaymentTransaction) RemainingCents() int64 {
	return t.AmountCents - t.RefundedCents
}
