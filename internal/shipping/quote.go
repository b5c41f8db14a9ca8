package shipping

import (
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
)

// Option is one carrier rate offered for the cart and destination.
type Option struct {
	ModuleCode    string `json:"module_code"`
	PriceCents    int64  `json:"price_cents"`
	EstimatedDays int    `json:"estimated_days"`
	Description   string `json:"description"`
	Selected      bool   `json:"selected"`
}

// Warning records a per-module problem that did not fail the whole quote.
type Warning struct {
	ModuleCode string         `json:"module_code"`
	Code       pkgerrors.Code `json:"code"`
	Message    string         `json:"message"`
}

// Quote is the aggregated result of querying every enabled shipping module.
// ReturnCode is set only when no options were produced; its values are wire
// stable.
type Quote struct {
	Options          []Option       `json:"options"`
	ReturnCode       pkgerrors.Code `json:"return_code,omitempty"`
	FreeShipping     bool           `json:"free_shipping"`
	HandlingFeeCents int64          `json:"handling_fee_cents"`
	Warnings         []Warning      `json:"warnings,omitempty"`
}

// SelectedOption returns the option marked selected, if any.
func (q *Quote) SelectedOption() *Option {
	for i := range q.Options {
		if q.Options[i].Selected {
			return &q.Options[i]
		}
	}
	return nil
}
