package shipping

import (
	"context"
	"fmt"

	"github.com/harborline/checkout-engine/pkg/types"
)

// AdapterCodeFlatRate is the module code the flat rate adapter registers under.
const AdapterCodeFlatRate = "flatrate"

// FlatRateAdapter quotes a single configured rate for any destination,
// optionally restricted to a list of countries.
type FlatRateAdapter struct{}

// NewFlatRateAdapter returns the config-driven flat rate adapter.
func NewFlatRateAdapter() *FlatRateAdapter {
	return &FlatRateAdapter{}
}

func (a *FlatRateAdapter) RequiresPostalCode() bool {
	return false
}

func (a *FlatRateAdapter) Quote(ctx context.Context, cart types.Cart, addr types.Address, cfg types.ConfigMap) ([]Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate := cfg.Int64("rate_cents", -1)
	if rate < 0 {
		return nil, fmt.Errorf("flatrate: rate_cents missing from module config")
	}

	if !countryAllowed(cfg, addr.CountryCode()) {
		return nil, nil
	}

	return []Option{{
		PriceCents:    rate,
		EstimatedDays: int(cfg.Int64("estimated_days", 5)),
		Description:   cfg.String("label", "Flat Rate"),
	}}, nil
}

func countryAllowed(cfg types.ConfigMap, country string) bool {
	raw, ok := cfg["allowed_countries"]
	if !ok {
		return true
	}
	list, ok := raw.([]any)
	if !ok {
		return true
	}
	for _, entry := range list {
		if code, ok := entry.(string); ok && code == country {
			return true
		}
	}
	return false
}
