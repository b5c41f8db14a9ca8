// Package squaregw implements the payment gateway capability on top of the
// Square SDK. It owns auth, per-call idempotency keys, redacted logging, and
// the mapping from Square errors to domain error codes.
package squaregw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/harborline/checkout-engine/internal/payments"
	"github.com/harborline/checkout-engine/pkg/config"
	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
)

// AdapterCode is the module code merchants configure for this gateway.
const AdapterCode = "square"

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationIDRequired  = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Gateway talks to Square on behalf of the transaction orchestrator.
type Gateway struct {
	sdk         *sqclient.Client
	locationID  string
	environment string
	logg        *logger.Logger
}

var _ payments.Gateway = (*Gateway)(nil)

// New validates the Square credentials and returns a ready gateway.
func New(cfg config.SquareConfig, logg *logger.Logger) (*Gateway, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationIDRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)
	return &Gateway{
		sdk:         sdk,
		locationID:  locationID,
		environment: env,
		logg:        logg,
	}, nil
}

// Capture charges the tokenized payment source for the full transaction
// amount. The idempotency key is derived from the transaction id so a
// retried capture never double-charges.
func (g *Gateway) Capture(ctx context.Context, tx *models.PaymentTransaction) (*payments.GatewayResult, error) {
	if tx.SourceToken == nil || strings.TrimSpace(*tx.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction has no payment source token").
			WithDetails(map[string]any{"field": "source_token"})
	}

	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey("capture", tx.ID),
		SourceID:       *tx.SourceToken,
		LocationID:     ptrString(g.locationID),
		AmountMoney:    moneyPtr(tx.AmountCents, tx.Currency),
		ReferenceID:    ptrString(tx.ID.String()),
	}
	g.log(ctx, "request", "create_payment", map[string]any{
		"transaction_id": tx.ID.String(),
		"location_id":    g.locationID,
		"amount":         tx.AmountCents,
	})

	resp, err := g.sdk.Payments.Create(ctx, req)
	if err != nil {
		g.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, g.mapSquareError(err, "create payment")
	}

	payment := resp.GetPayment()
	g.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return &payments.GatewayResult{Reference: stringValue(payment.GetID())}, nil
}

// Refund returns amountCents to the customer against the captured payment.
func (g *Gateway) Refund(ctx context.Context, tx *models.PaymentTransaction, amountCents int64) (*payments.GatewayResult, error) {
	if tx.GatewayRef == nil || strings.TrimSpace(*tx.GatewayRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction has no gateway payment reference")
	}

	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey("refund", tx.ID) + fmt.Sprintf("-%d", tx.RefundedCents),
		PaymentID:      tx.GatewayRef,
		AmountMoney:    moneyPtr(amountCents, tx.Currency),
	}
	g.log(ctx, "request", "refund_payment", map[string]any{
		"transaction_id": tx.ID.String(),
		"payment_id":     *tx.GatewayRef,
		"amount":         amountCents,
	})

	resp, err := g.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		g.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return nil, g.mapSquareError(err, "refund payment")
	}

	refund := resp.GetRefund()
	status := stringValue(refund.GetStatus())
	g.log(ctx, "response", "refund_payment", map[string]any{
		"refund_id": refund.GetID(),
		"status":    status,
	})
	if status == "REJECTED" || status == "FAILED" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("square refund %s", strings.ToLower(status)))
	}
	return &payments.GatewayResult{Reference: refund.GetID()}, nil
}

// Lookup reads the gateway-side state of a previously submitted payment.
// Transactions that never produced a payment id are reported as-is.
func (g *Gateway) Lookup(ctx context.Context, tx *models.PaymentTransaction) (*payments.GatewayStatus, error) {
	if tx.GatewayRef == nil || strings.TrimSpace(*tx.GatewayRef) == "" {
		return &payments.GatewayStatus{Status: tx.Status}, nil
	}

	resp, err := g.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: *tx.GatewayRef})
	if err != nil {
		g.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, g.mapSquareError(err, "get payment")
	}

	payment := resp.GetPayment()
	status := &payments.GatewayStatus{
		Status:    mapPaymentStatus(stringValue(payment.GetStatus()), tx.Status),
		Reference: stringValue(payment.GetID()),
	}
	if refunded := payment.GetRefundedMoney(); refunded != nil && refunded.Amount != nil {
		status.RefundedCents = *refunded.Amount
		if status.RefundedCents >= tx.AmountCents {
			status.Status = enums.TransactionStatusRefunded
		}
	}
	return status, nil
}

func mapPaymentStatus(squareStatus string, current enums.TransactionStatus) enums.TransactionStatus {
	switch squareStatus {
	case "COMPLETED":
		return enums.TransactionStatusCaptured
	case "FAILED", "CANCELED":
		return enums.TransactionStatusFailed
	default:
		// APPROVED and PENDING are in-flight; keep the local view.
		return current
	}
}

func idempotencyKey(op string, id uuid.UUID) string {
	return fmt.Sprintf("%s-%s", op, id)
}

func (g *Gateway) log(ctx context.Context, phase, op string, fields map[string]any) {
	if g == nil || g.logg == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = g.logg.WithFields(ctx, logFields)
	switch phase {
	case "error":
		g.logg.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		g.logg.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (g *Gateway) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.StatusCode)
		for _, sqErr := range extractSquareErrors(apiErr) {
			if sqErr == nil {
				continue
			}
			if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
				code = pkgerrors.CodeIdempotency
				break
			}
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeGateway
		}
		return pkgerrors.CodeDependency
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
