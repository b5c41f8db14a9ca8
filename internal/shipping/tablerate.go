package shipping

import (
	"context"
	"fmt"

	"github.com/harborline/checkout-engine/pkg/types"
)

// AdapterCodeTableRate is the module code the table rate adapter registers under.
const AdapterCodeTableRate = "tablerate"

// TableRateAdapter quotes from a configured weight/destination bracket table.
// It picks the tightest bracket covering the cart weight for the destination
// country.
type TableRateAdapter struct{}

// NewTableRateAdapter returns the config-driven table rate adapter.
func NewTableRateAdapter() *TableRateAdapter {
	return &TableRateAdapter{}
}

func (a *TableRateAdapter) RequiresPostalCode() bool {
	return true
}

type rateBracket struct {
	country        string
	maxWeightGrams int64
	rateCents      int64
	estimatedDays  int
	label          string
}

func (a *TableRateAdapter) Quote(ctx context.Context, cart types.Cart, addr types.Address, cfg types.ConfigMap) ([]Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	brackets, err := parseBrackets(cfg)
	if err != nil {
		return nil, err
	}

	weight := cart.TotalWeightGrams()
	country := addr.CountryCode()

	var best *rateBracket
	for i := range brackets {
		b := brackets[i]
		if b.country != "" && b.country != country {
			continue
		}
		if b.maxWeightGrams > 0 && weight > b.maxWeightGrams {
			continue
		}
		if best == nil || bracketTighter(b, *best) {
			best = &brackets[i]
		}
	}
	if best == nil {
		return nil, nil
	}

	label := best.label
	if label == "" {
		label = "Table Rate"
	}
	return []Option{{
		PriceCents:    best.rateCents,
		EstimatedDays: best.estimatedDays,
		Description:   label,
	}}, nil
}

// bracketTighter prefers the smaller covering weight limit; an explicit limit
// beats no limit.
func bracketTighter(a, b rateBracket) bool {
	if a.maxWeightGrams == 0 {
		return false
	}
	if b.maxWeightGrams == 0 {
		return true
	}
	return a.maxWeightGrams < b.maxWeightGrams
}

func parseBrackets(cfg types.ConfigMap) ([]rateBracket, error) {
	raw, ok := cfg["table"]
	if !ok {
		return nil, fmt.Errorf("tablerate: table missing from module config")
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("tablerate: table is not a list")
	}

	brackets := make([]rateBracket, 0, len(rows))
	for i, rawRow := range rows {
		row, ok := rawRow.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tablerate: table row %d is not an object", i)
		}
		entry := types.ConfigMap(row)
		rate := entry.Int64("rate_cents", -1)
		if rate < 0 {
			return nil, fmt.Errorf("tablerate: table row %d missing rate_cents", i)
		}
		brackets = append(brackets, rateBracket{
			country:        entry.String("country", ""),
			maxWeightGrams: entry.Int64("max_weight_grams", 0),
			rateCents:      rate,
			estimatedDays:  int(entry.Int64("estimated_days", 7)),
			label:          entry.String("label", ""),
		})
	}
	return brackets, nil
}
