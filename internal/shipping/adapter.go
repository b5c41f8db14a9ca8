package shipping

import (
	"context"

	"github.com/harborline/checkout-engine/pkg/types"
)

// Adapter is the uniform capability interface every shipping module
// implements. Quote returns zero options (not an error) when the module does
// not serve the destination.
type Adapter interface {
	// RequiresPostalCode reports whether the adapter cannot quote without a
	// postal code on the delivery address.
	RequiresPostalCode() bool
	Quote(ctx context.Context, cart types.Cart, addr types.Address, cfg types.ConfigMap) ([]Option, error)
}
