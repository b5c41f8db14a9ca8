package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/api/responses"
	"github.com/harborline/checkout-engine/api/validators"
	"github.com/harborline/checkout-engine/internal/payments"
	"github.com/harborline/checkout-engine/pkg/db/models"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
)

// TransactionInit validates card details and creates an initialized payment
// transaction. Repeat submissions inside the idempotency window return the
// existing transaction.
func TransactionInit(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload transactionInitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, payload.MerchantID.String())
		}

		txn, err := svc.Init(ctx, payments.InitInput{
			MerchantID:  payload.MerchantID,
			OrderID:     payload.OrderID,
			CustomerID:  payload.CustomerID,
			ModuleCode:  payload.ModuleCode,
			AmountCents: payload.AmountCents,
			Currency:    payload.Currency,
			SourceToken: payload.SourceToken,
			Card: payments.CardDetails{
				Number:   payload.Card.Number,
				ExpMonth: payload.Card.ExpMonth,
				ExpYear:  payload.Card.ExpYear,
				CVV:      payload.Card.CVV,
				Holder:   payload.Card.Holder,
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionResponse(txn))
	}
}

// TransactionCapture moves an initialized transaction through the gateway
// charge.
func TransactionCapture(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return transactionAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.PaymentTransaction, error) {
		return svc.Capture(r.Context(), id)
	})
}

// TransactionRefund returns part or all of a captured amount.
func TransactionRefund(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		id, err := transactionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transactionRefundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Refund(r.Context(), id, payload.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// TransactionReconcile re-reads gateway state for a transaction whose
// outcome is unknown.
func TransactionReconcile(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return transactionAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.PaymentTransaction, error) {
		return svc.Reconcile(r.Context(), id)
	})
}

// TransactionByOrder resolves the latest transaction for an order and
// customer, for callers that never saw the init response.
func TransactionByOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := queryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := queryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.GetByOrder(r.Context(), orderID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// TransactionDetail returns the current state of one transaction.
func TransactionDetail(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return transactionAction(svc, logg, func(r *http.Request, id uuid.UUID) (*models.PaymentTransaction, error) {
		return svc.Get(r.Context(), id)
	})
}

func transactionAction(svc payments.Service, logg *logger.Logger, fn func(*http.Request, uuid.UUID) (*models.PaymentTransaction, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		id, err := transactionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := fn(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

func queryUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" must be a valid uuid").
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

func transactionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "transactionId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id must be a valid uuid").
			WithDetails(map[string]any{"field": "transactionId"})
	}
	return id, nil
}

type transactionInitRequest struct {
	MerchantID  uuid.UUID       `json:"merchant_id" validate:"required,uuid4"`
	OrderID     uuid.UUID       `json:"order_id" validate:"required,uuid4"`
	CustomerID  uuid.UUID       `json:"customer_id" validate:"required,uuid4"`
	ModuleCode  string          `json:"module_code" validate:"required"`
	AmountCents int64           `json:"amount_cents" validate:"required,gt=0"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	SourceToken string          `json:"source_token,omitempty"`
	Card        cardInitRequest `json:"card" validate:"required"`
}

type cardInitRequest struct {
	Number   string `json:"number" validate:"required"`
	ExpMonth int    `json:"exp_month" validate:"required"`
	ExpYear  int    `json:"exp_year" validate:"required"`
	CVV      string `json:"cvv" validate:"required"`
	Holder   string `json:"holder,omitempty"`
}

type transactionRefundRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	MerchantID    uuid.UUID  `json:"merchant_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	CustomerID    uuid.UUID  `json:"customer_id"`
	ModuleCode    string     `json:"module_code"`
	Status        string     `json:"status"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	RefundedCents int64      `json:"refunded_cents"`
	GatewayRef    *string    `json:"gateway_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CardLast4     *string    `json:"card_last4,omitempty"`
	CapturedAt    *time.Time `json:"captured_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newTransactionResponse(txn *models.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:            txn.ID,
		MerchantID:    txn.MerchantID,
		OrderID:       txn.OrderID,
		CustomerID:    txn.CustomerID,
		ModuleCode:    txn.ModuleCode,
		Status:        string(txn.Status),
		AmountCents:   txn.AmountCents,
		Currency:      txn.Currency,
		RefundedCents: txn.RefundedCents,
		GatewayRef:    txn.GatewayRef,
		FailureReason: txn.FailureReason,
		CardLast4:     txn.CardLast4,
		CapturedAt:    txn.CapturedAt,
		RefundedAt:    txn.RefundedAt,
		FailedAt:      txn.FailedAt,
		CreatedAt:     txn.CreatedAt,
	}
}
