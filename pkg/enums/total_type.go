package enums

import "fmt"

// TotalType identifies one adjustment line in an order total breakdown.
type TotalType string

const (
	TotalTypeSubtotal TotalType = "SUBTOTAL"
	TotalTypeShipping TotalType = "SHIPPING"
	TotalTypeHandling TotalType = "HANDLING"
	TotalTypeTax      TotalType = "TAX"
	TotalTypeDiscount TotalType = "DISCOUNT"
)

var validTotalTypes = []TotalType{
	TotalTypeSubtotal,
	TotalTypeShipping,
	TotalTypeHandling,
	TotalTypeTax,
	TotalTypeDiscount,
}

// String implements fmt.Stringer.
func (t TotalType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TotalType.
func (t TotalType) IsValid() bool {
	for _, candidate := range validTotalTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTotalType converts raw input into a TotalType.
func ParseTotalType(value string) (TotalType, error) {
	for _, candidate := range validTotalTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid total type %q", value)
}
