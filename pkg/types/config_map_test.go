package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestConfigMapTypedGetters(t *testing.T) {
	cfg := ConfigMap{
		"free_shipping_threshold_cents": float64(7500),
		"handling_fee_cents":            "250",
		"tax_on_shipping":               true,
		"tax_rate":                      "0.0825",
		"label":                         "Flat Rate",
	}

	if got := cfg.Int64("free_shipping_threshold_cents", 0); got != 7500 {
		t.Fatalf("expected 7500, got %d", got)
	}
	if got := cfg.Int64("handling_fee_cents", 0); got != 250 {
		t.Fatalf("expected 250 from numeric string, got %d", got)
	}
	if got := cfg.Int64("missing", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
	if !cfg.Bool("tax_on_shipping", false) {
		t.Fatal("expected tax_on_shipping true")
	}
	if cfg.Bool("missing", false) {
		t.Fatal("expected fallback false")
	}
	if got := cfg.String("label", ""); got != "Flat Rate" {
		t.Fatalf("unexpected label %q", got)
	}

	rate, err := cfg.Decimal("tax_rate")
	if err != nil {
		t.Fatalf("unexpected decimal error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.0825")) {
		t.Fatalf("unexpected rate %s", rate)
	}
	if _, err := cfg.Decimal("missing"); err == nil {
		t.Fatal("expected error for missing decimal key")
	}
}

func TestConfigMapScanValueRoundTrip(t *testing.T) {
	cfg := ConfigMap{"rate_cents": float64(995), "label": "Ground"}
	raw, err := cfg.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var decoded ConfigMap
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if decoded.Int64("rate_cents", 0) != 995 || decoded.String("label", "") != "Ground" {
		t.Fatalf("round trip mismatch: %#v", decoded)
	}
}

func TestCartInvariants(t *testing.T) {
	valid := Cart{Items: []CartItem{{SKU: "A", Qty: 2, UnitPriceCents: 5000}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if got := valid.SubtotalCents(); got != 10000 {
		t.Fatalf("expected subtotal 10000, got %d", got)
	}

	if err := (Cart{}).Validate(); err == nil {
		t.Fatal("empty cart should fail validation")
	}
	if err := (Cart{Items: []CartItem{{SKU: "A", Qty: 0, UnitPriceCents: 100}}}).Validate(); err == nil {
		t.Fatal("zero quantity should fail validation")
	}
}

func TestAddressPostalCodeAndCountry(t *testing.T) {
	addr := Address{Line1: "1 Main St", City: "Denver", Region: "CO", PostalCode: " ", Country: ""}
	if addr.HasPostalCode() {
		t.Fatal("blank postal code should not count")
	}
	if addr.CountryCode() != "US" {
		t.Fatalf("expected default US, got %q", addr.CountryCode())
	}
	addr.PostalCode = "80202"
	addr.Country = "ca"
	if !addr.HasPostalCode() || addr.CountryCode() != "CA" {
		t.Fatalf("unexpected address normalization: %+v", addr)
	}
}
