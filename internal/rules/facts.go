package rules

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harborline/checkout-engine/pkg/enums"
	"github.com/harborline/checkout-engine/pkg/types"
)

// RuleFact is the input context for one evaluation. It is built fresh per
// call and discarded afterwards; the evaluator holds no per-call state.
type RuleFact struct {
	PromoCode      string
	EvaluationDate time.Time
	CustomerID     uuid.UUID
	Items          []types.CartItem
}

// SubtotalCents sums quantity times unit price across the fact's items.
func (f RuleFact) SubtotalCents() int64 {
	var total int64
	for _, item := range f.Items {
		total += int64(item.Qty) * item.UnitPriceCents
	}
	return total
}

// TotalQuantity sums item quantities.
func (f RuleFact) TotalQuantity() int64 {
	var total int64
	for _, item := range f.Items {
		total += int64(item.Qty)
	}
	return total
}

// RuleDecision is the outcome of one evaluation. When Applicable is false the
// remaining fields carry no meaning.
type RuleDecision struct {
	Applicable       bool
	DiscountType     enums.DiscountType
	DiscountFraction decimal.Decimal
	FixedAmountCents int64
	Label            string
}

// NotApplicable is the zero decision.
func NotApplicable() RuleDecision {
	return RuleDecision{}
}
