package types

import "errors"

var (
	errEmptyCart      = errors.New("cart must contain at least one item")
	errNonPositiveQty = errors.New("item quantity must be positive")
	errNegativePrice  = errors.New("item unit price cannot be negative")
)
