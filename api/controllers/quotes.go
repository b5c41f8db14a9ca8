package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/api/responses"
	"github.com/harborline/checkout-engine/api/validators"
	"github.com/harborline/checkout-engine/internal/shipping"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/types"
)

// QuoteCreate aggregates shipping quotes across the merchant's enabled
// modules for the given cart and destination.
func QuoteCreate(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, payload.MerchantID.String())
		}

		quote, err := svc.Quote(ctx, payload.MerchantID, payload.Cart, payload.Address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, quote)
	}
}

// QuoteSelect marks one option of a previously aggregated quote as the
// chosen shipping method and re-applies free shipping pricing.
func QuoteSelect(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload quoteSelectRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Select(&payload.Quote, payload.ModuleCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, updated)
	}
}

type quoteRequest struct {
	MerchantID uuid.UUID     `json:"merchant_id" validate:"required,uuid4"`
	Cart       types.Cart    `json:"cart" validate:"required"`
	Address    types.Address `json:"address"`
}

type quoteSelectRequest struct {
	Quote      shipping.Quote `json:"quote" validate:"required"`
	ModuleCode string         `json:"module_code" validate:"required"`
}
