package totals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harborline/checkout-engine/internal/registry"
	"github.com/harborline/checkout-engine/internal/rules"
	"github.com/harborline/checkout-engine/internal/shipping"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/metrics"
	"github.com/harborline/checkout-engine/pkg/types"
)

// PromoRuleSetName is the rule set consulted by the discount stage.
const PromoRuleSetName = "PromoCoupon"

// Tax module config keys.
const (
	cfgTaxRate       = "tax_rate"
	cfgTaxOnShipping = "tax_on_shipping"
)

// Entry is one signed adjustment in the order total breakdown.
type Entry struct {
	Type        enums.TotalType `json:"type"`
	Code        string          `json:"code,omitempty"`
	ValueCents  int64           `json:"value_cents"`
	Description string          `json:"description"`
}

// Result is the itemized outcome of one pipeline run. Warnings carry
// stage-level problems that did not abort the computation.
type Result struct {
	Entries         []Entry  `json:"entries"`
	GrandTotalCents int64    `json:"grand_total_cents"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Service computes itemized order totals. The stage order is fixed at
// construction and identical inputs always produce identical results.
type Service interface {
	Compute(ctx context.Context, merchantID uuid.UUID, cart types.Cart, quote *shipping.Quote, customerID uuid.UUID) (*Result, error)
}

type service struct {
	registry registry.Service
	rules    rules.Service
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	now      func() time.Time
}

// NewService wires the order total pipeline. metrics may be nil.
func NewService(reg registry.Service, evaluator rules.Service, logg *logger.Logger, em *metrics.EngineMetrics) (Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("module registry required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("rule evaluator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		registry: reg,
		rules:    evaluator,
		logg:     logg,
		metrics:  em,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Compute(ctx context.Context, merchantID uuid.UUID, cart types.Cart, quote *shipping.Quote, customerID uuid.UUID) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTotal(time.Since(start)) }()

	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	if err := cart.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart")
	}

	result := &Result{}

	// Stage order is fixed: later stages read the running amounts of
	// earlier ones.
	subtotalCents := s.stageSubtotal(result, cart)
	shippingCents := s.stageShipping(result, quote)
	handlingCents := s.stageHandling(result, quote)
	discountCents := s.stageDiscount(ctx, result, merchantID, cart, customerID, subtotalCents)
	s.stageTax(ctx, result, merchantID, subtotalCents+handlingCents, shippingCents, discountCents)

	for _, entry := range result.Entries {
		result.GrandTotalCents += entry.ValueCents
	}
	return result, nil
}

func (s *service) stageSubtotal(result *Result, cart types.Cart) int64 {
	subtotal := cart.SubtotalCents()
	result.Entries = append(result.Entries, Entry{
		Type:        enums.TotalTypeSubtotal,
		ValueCents:  subtotal,
		Description: "Items subtotal",
	})
	return subtotal
}

func (s *service) stageShipping(result *Result, quote *shipping.Quote) int64 {
	if quote == nil {
		return 0
	}
	option := quote.SelectedOption()
	if option == nil {
		if len(quote.Options) > 0 {
			result.Warnings = append(result.Warnings, "no shipping option selected")
		}
		return 0
	}

	value := option.PriceCents
	if quote.FreeShipping {
		value = 0
	}
	result.Entries = append(result.Entries, Entry{
		Type:        enums.TotalTypeShipping,
		Code:        option.ModuleCode,
		ValueCents:  value,
		Description: option.Description,
	})
	return value
}

func (s *service) stageHandling(result *Result, quote *shipping.Quote) int64 {
	if quote == nil || quote.HandlingFeeCents == 0 {
		return 0
	}
	result.Entries = append(result.Entries, Entry{
		Type:        enums.TotalTypeHandling,
		ValueCents:  quote.HandlingFeeCents,
		Description: "Handling fee",
	})
	return quote.HandlingFeeCents
}

// stageDiscount is fail-open: an unavailable or non-matching rule set never
// blocks checkout.
func (s *service) stageDiscount(ctx context.Context, result *Result, merchantID uuid.UUID, cart types.Cart, customerID uuid.UUID, subtotalCents int64) int64 {
	if cart.PromoCode == "" {
		return 0
	}

	facts := rules.RuleFact{
		PromoCode:      cart.PromoCode,
		EvaluationDate: s.now(),
		CustomerID:     customerID,
		Items:          cart.Items,
	}
	decision, err := s.rules.Evaluate(ctx, merchantID, PromoRuleSetName, facts)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("promotion evaluation failed: %v", err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("promotion skipped: %v", err))
		return 0
	}
	if !decision.Applicable {
		return 0
	}

	var discountCents int64
	switch decision.DiscountType {
	case enums.DiscountTypePercentage:
		// Accumulate in decimal and round to cents exactly once.
		total := decimal.Zero
		for _, item := range cart.Items {
			line := decimal.NewFromInt(item.UnitPriceCents).
				Mul(decision.DiscountFraction).
				Mul(decimal.NewFromInt(int64(item.Qty)))
			total = total.Add(line)
		}
		discountCents = total.Round(0).IntPart()
	case enums.DiscountTypeFixedAmount:
		discountCents = decision.FixedAmountCents
	default:
		result.Warnings = append(result.Warnings, fmt.Sprintf("promotion skipped: unknown discount type %q", decision.DiscountType))
		return 0
	}

	if discountCents > subtotalCents {
		discountCents = subtotalCents
	}
	if discountCents <= 0 {
		return 0
	}

	result.Entries = append(result.Entries, Entry{
		Type:        enums.TotalTypeDiscount,
		Code:        cart.PromoCode,
		ValueCents:  -discountCents,
		Description: decision.Label,
	})
	return discountCents
}

func (s *service) stageTax(ctx context.Context, result *Result, merchantID uuid.UUID, taxableCents, shippingCents, discountCents int64) {
	modules, err := s.registry.ListModules(ctx, merchantID, enums.ModuleKindTax)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("tax skipped: %v", err))
		return
	}
	if len(modules) == 0 {
		return
	}

	module := modules[0]
	rate, err := module.Config.Decimal(cfgTaxRate)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("tax skipped: %v", err))
		return
	}
	if rate.IsZero() {
		return
	}

	// Base is the running total after discount. Shipping uses its
	// pre-discount value and is included only when configured.
	baseCents := taxableCents - discountCents
	if module.Config.Bool(cfgTaxOnShipping, false) {
		baseCents += shippingCents
	}
	if baseCents <= 0 {
		return
	}

	taxCents := decimal.NewFromInt(baseCents).Mul(rate).Round(0).IntPart()
	if taxCents <= 0 {
		return
	}

	result.Entries = append(result.Entries, Entry{
		Type:        enums.TotalTypeTax,
		Code:        module.Code,
		ValueCents:  taxCents,
		Description: "Tax",
	})
}
