package payments

import (
	"context"

	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
)

// GatewayResult is the outcome of a successful gateway call.
type GatewayResult struct {
	Reference string
}

// GatewayStatus is the gateway-side view of a transaction, used by Reconcile
// when an outcome is unknown.
type GatewayStatus struct {
	Status        enums.TransactionStatus
	Reference     string
	RefundedCents int64
}

// Gateway is the uniform capability interface every payment module
// implements. Calls are not retried by the orchestrator; retry policy belongs
// to the caller.
type Gateway interface {
	Capture(ctx context.Context, tx *models.PaymentTransaction) (*GatewayResult, error)
	Refund(ctx context.Context, tx *models.PaymentTransaction, amountCents int64) (*GatewayResult, error)
	Lookup(ctx context.Context, tx *models.PaymentTransaction) (*GatewayStatus, error)
}
