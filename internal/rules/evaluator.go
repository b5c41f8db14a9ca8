package rules

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
)

// Service evaluates named rule sets against a fact context. Each call is
// stateless; rule sets are compiled once into immutable decision tables and
// cached until invalidated.
type Service interface {
	Evaluate(ctx context.Context, merchantID uuid.UUID, setName string, facts RuleFact) (RuleDecision, error)
	Invalidate(merchantID uuid.UUID, setName string)
}

type service struct {
	repo Repository

	mu     sync.RWMutex
	tables map[tableKey]*decisionTable
}

type tableKey struct {
	merchantID uuid.UUID
	name       string
}

type decisionTable struct {
	rules []compiledRule
}

type compiledRule struct {
	label            string
	priority         int
	position         int
	promoCode        string
	minSubtotalCents int64
	minQuantity      int64
	discountType     enums.DiscountType
	fraction         decimal.Decimal
	fixedCents       int64
	startsAt         *time.Time
	expiresAt        *time.Time
}

// NewService wires a rule evaluator with the provided rule store.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rules repository required")
	}
	return &service{
		repo:   repo,
		tables: make(map[tableKey]*decisionTable),
	}, nil
}

func (s *service) Evaluate(ctx context.Context, merchantID uuid.UUID, setName string, facts RuleFact) (RuleDecision, error) {
	if merchantID == uuid.Nil {
		return NotApplicable(), pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	if setName == "" {
		return NotApplicable(), pkgerrors.New(pkgerrors.CodeValidation, "rule set name is required")
	}

	table, err := s.table(ctx, merchantID, setName)
	if err != nil {
		return NotApplicable(), err
	}

	when := facts.EvaluationDate
	if when.IsZero() {
		when = time.Now().UTC()
	}

	for _, rule := range table.rules {
		if !rule.matches(facts) {
			continue
		}
		// The highest-priority match wins. A winning rule outside its
		// validity window yields not-applicable, never an error.
		if !rule.activeAt(when) {
			return NotApplicable(), nil
		}
		return RuleDecision{
			Applicable:       true,
			DiscountType:     rule.discountType,
			DiscountFraction: rule.fraction,
			FixedAmountCents: rule.fixedCents,
			Label:            rule.label,
		}, nil
	}

	return NotApplicable(), nil
}

// Invalidate drops the compiled table; the next Evaluate reloads the set.
func (s *service) Invalidate(merchantID uuid.UUID, setName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, tableKey{merchantID: merchantID, name: setName})
}

func (s *service) table(ctx context.Context, merchantID uuid.UUID, setName string) (*decisionTable, error) {
	key := tableKey{merchantID: merchantID, name: setName}

	s.mu.RLock()
	table, ok := s.tables[key]
	s.mu.RUnlock()
	if ok {
		return table, nil
	}

	set, err := s.repo.GetByName(ctx, merchantID, setName)
	if err == ErrRuleSetNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("rule set %q not found", setName))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading rule set")
	}

	table, err = compile(set)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tables[key]; ok {
		return existing, nil
	}
	s.tables[key] = table
	return table, nil
}

func compile(set *models.PromotionRuleSet) (*decisionTable, error) {
	compiled := make([]compiledRule, 0, len(set.Rules))
	for _, rule := range set.Rules {
		cr := compiledRule{
			label:        rule.Label,
			priority:     rule.Priority,
			position:     rule.Position,
			discountType: rule.DiscountType,
			startsAt:     rule.StartsAt,
			expiresAt:    rule.ExpiresAt,
		}

		switch rule.DiscountType {
		case enums.DiscountTypePercentage:
			fraction, err := decimal.NewFromString(rule.DiscountValue)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err,
					fmt.Sprintf("rule %q has malformed discount fraction", rule.Label))
			}
			if fraction.IsNegative() || fraction.GreaterThan(decimal.NewFromInt(1)) {
				return nil, pkgerrors.New(pkgerrors.CodeInternal,
					fmt.Sprintf("rule %q discount fraction %s outside [0,1]", rule.Label, fraction))
			}
			cr.fraction = fraction
		case enums.DiscountTypeFixedAmount:
			cents, err := strconv.ParseInt(rule.DiscountValue, 10, 64)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err,
					fmt.Sprintf("rule %q has malformed fixed amount", rule.Label))
			}
			if cents < 0 {
				return nil, pkgerrors.New(pkgerrors.CodeInternal,
					fmt.Sprintf("rule %q fixed amount is negative", rule.Label))
			}
			cr.fixedCents = cents
		default:
			return nil, pkgerrors.New(pkgerrors.CodeInternal,
				fmt.Sprintf("rule %q has unknown discount type %q", rule.Label, rule.DiscountType))
		}

		if rule.Conditions != nil {
			cr.promoCode = rule.Conditions.String("promo_code", "")
			cr.minSubtotalCents = rule.Conditions.Int64("min_subtotal_cents", 0)
			cr.minQuantity = rule.Conditions.Int64("min_quantity", 0)
		}

		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].priority != compiled[j].priority {
			return compiled[i].priority > compiled[j].priority
		}
		return compiled[i].position < compiled[j].position
	})

	return &decisionTable{rules: compiled}, nil
}

func (r compiledRule) matches(facts RuleFact) bool {
	if r.promoCode != "" && r.promoCode != facts.PromoCode {
		return false
	}
	if r.minSubtotalCents > 0 && facts.SubtotalCents() < r.minSubtotalCents {
		return false
	}
	if r.minQuantity > 0 && facts.TotalQuantity() < r.minQuantity {
		return false
	}
	return true
}

func (r compiledRule) activeAt(when time.Time) bool {
	if r.startsAt != nil && when.Before(*r.startsAt) {
		return false
	}
	if r.expiresAt != nil && !when.Before(*r.expiresAt) {
		return false
	}
	return true
}
