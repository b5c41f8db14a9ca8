package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/api/responses"
	"github.com/harborline/checkout-engine/api/validators"
	"github.com/harborline/checkout-engine/internal/shipping"
	"github.com/harborline/checkout-engine/internal/totals"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/types"
)

// TotalsCompute runs the order total pipeline for a cart, optionally with an
// aggregated shipping quote carrying the selected option.
func TotalsCompute(svc totals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "totals service unavailable"))
			return
		}

		var payload totalsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, payload.MerchantID.String())
		}

		result, err := svc.Compute(ctx, payload.MerchantID, payload.Cart, payload.Quote, payload.CustomerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type totalsRequest struct {
	MerchantID uuid.UUID       `json:"merchant_id" validate:"required,uuid4"`
	CustomerID uuid.UUID       `json:"customer_id" validate:"omitempty,uuid4"`
	Cart       types.Cart      `json:"cart" validate:"required"`
	Quote      *shipping.Quote `json:"quote,omitempty"`
}
