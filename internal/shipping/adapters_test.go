package shipping

import (
	"context"
	"testing"

	"github.com/harborline/checkout-engine/pkg/types"
)

func TestFlatRateAdapter(t *testing.T) {
	adapter := NewFlatRateAdapter()
	ctx := context.Background()
	cart := testCart()
	addr := testAddress()

	options, err := adapter.Quote(ctx, cart, addr, types.ConfigMap{
		"rate_cents":     float64(995),
		"estimated_days": float64(3),
		"label":          "Standard Ground",
	})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if len(options) != 1 {
		t.Fatalf("expected one option, got %d", len(options))
	}
	if options[0].PriceCents != 995 || options[0].EstimatedDays != 3 || options[0].Description != "Standard Ground" {
		t.Fatalf("unexpected option %+v", options[0])
	}

	if _, err := adapter.Quote(ctx, cart, addr, types.ConfigMap{}); err == nil {
		t.Fatal("missing rate_cents must error")
	}

	options, err = adapter.Quote(ctx, cart, addr, types.ConfigMap{
		"rate_cents":        float64(995),
		"allowed_countries": []any{"CA", "MX"},
	})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if len(options) != 0 {
		t.Fatalf("US destination outside allowed countries should produce no options, got %+v", options)
	}
}

func TestTableRateAdapterPicksTightestBracket(t *testing.T) {
	adapter := NewTableRateAdapter()
	ctx := context.Background()
	addr := testAddress()

	cfg := types.ConfigMap{
		"table": []any{
			map[string]any{"country": "US", "max_weight_grams": float64(500), "rate_cents": float64(600), "estimated_days": float64(4), "label": "Light"},
			map[string]any{"country": "US", "max_weight_grams": float64(5000), "rate_cents": float64(1400), "estimated_days": float64(4), "label": "Heavy"},
			map[string]any{"country": "CA", "rate_cents": float64(2500)},
		},
	}

	light := types.Cart{Items: []types.CartItem{{SKU: "A", Qty: 1, UnitPriceCents: 100, WeightGrams: 300}}}
	options, err := adapter.Quote(ctx, light, addr, cfg)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if len(options) != 1 || options[0].Description != "Light" || options[0].PriceCents != 600 {
		t.Fatalf("expected Light bracket, got %+v", options)
	}

	heavy := types.Cart{Items: []types.CartItem{{SKU: "A", Qty: 2, UnitPriceCents: 100, WeightGrams: 1200}}}
	options, err = adapter.Quote(ctx, heavy, addr, cfg)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if len(options) != 1 || options[0].Description != "Heavy" {
		t.Fatalf("expected Heavy bracket, got %+v", options)
	}
}

func TestTableRateAdapterNoBracketForDestination(t *testing.T) {
	adapter := NewTableRateAdapter()
	addr := testAddress()
	addr.Country = "DE"

	cfg := types.ConfigMap{
		"table": []any{
			map[string]any{"country": "US", "rate_cents": float64(600)},
		},
	}
	options, err := adapter.Quote(context.Background(), testCart(), addr, cfg)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if len(options) != 0 {
		t.Fatalf("expected no options for unserved country, got %+v", options)
	}
}

func TestTableRateAdapterMalformedTable(t *testing.T) {
	adapter := NewTableRateAdapter()

	if _, err := adapter.Quote(context.Background(), testCart(), testAddress(), types.ConfigMap{}); err == nil {
		t.Fatal("missing table must error")
	}
	cfg := types.ConfigMap{"table": []any{map[string]any{"country": "US"}}}
	if _, err := adapter.Quote(context.Background(), testCart(), testAddress(), cfg); err == nil {
		t.Fatal("row without rate_cents must error")
	}
}
