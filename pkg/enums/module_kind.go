package enums

import "fmt"

// ModuleKind classifies an integration module by capability.
type ModuleKind string

const (
	ModuleKindShipping  ModuleKind = "shipping"
	ModuleKindPayment   ModuleKind = "payment"
	ModuleKindTax       ModuleKind = "tax"
	ModuleKindPromotion ModuleKind = "promotion"
)

var validModuleKinds = []ModuleKind{
	ModuleKindShipping,
	ModuleKindPayment,
	ModuleKindTax,
	ModuleKindPromotion,
}

// String implements fmt.Stringer.
func (m ModuleKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known ModuleKind.
func (m ModuleKind) IsValid() bool {
	for _, candidate := range validModuleKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseModuleKind converts raw input into a ModuleKind.
func ParseModuleKind(value string) (ModuleKind, error) {
	for _, candidate := range validModuleKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid module kind %q", value)
}
