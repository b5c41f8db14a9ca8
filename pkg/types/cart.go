package types

import "github.com/google/uuid"

// Cart is the caller-owned snapshot of the items being purchased. It is
// immutable once handed to the engine.
type Cart struct {
	Items     []CartItem `json:"items"`
	PromoCode string     `json:"promo_code,omitempty"`
}

// CartItem is one purchasable line in a cart.
type CartItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	WeightGrams    int64     `json:"weight_grams,omitempty"`
}

// SubtotalCents sums quantity times unit price across all line items.
func (c Cart) SubtotalCents() int64 {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Qty) * item.UnitPriceCents
	}
	return total
}

// TotalWeightGrams sums the cart weight, used by weight-based carriers.
func (c Cart) TotalWeightGrams() int64 {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Qty) * item.WeightGrams
	}
	return total
}

// Validate checks the invariants the engine relies on.
func (c Cart) Validate() error {
	if len(c.Items) == 0 {
		return errEmptyCart
	}
	for _, item := range c.Items {
		if item.Qty <= 0 {
			return errNonPositiveQty
		}
		if item.UnitPriceCents < 0 {
			return errNegativePrice
		}
	}
	return nil
}
