package squaregw

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	"github.com/harborline/checkout-engine/pkg/config"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/logger"
)

func TestNewValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "squaregw-test"})

	if _, err := New(config.SquareConfig{LocationID: "L1"}, logg); err == nil {
		t.Fatalf("missing access token should fail")
	}
	if _, err := New(config.SquareConfig{AccessToken: "tok"}, logg); err == nil {
		t.Fatalf("missing location id should fail")
	}
	if _, err := New(config.SquareConfig{AccessToken: "tok", LocationID: "L1", Env: "staging"}, logg); err == nil {
		t.Fatalf("unknown environment should fail")
	}
	if _, err := New(config.SquareConfig{AccessToken: "tok", LocationID: "L1"}, nil); err == nil {
		t.Fatalf("nil logger should fail")
	}

	gw, err := New(config.SquareConfig{AccessToken: "tok", LocationID: "L1"}, logg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if gw.environment != sandboxEnv {
		t.Fatalf("empty env should default to sandbox, got %q", gw.environment)
	}
}

func TestIdempotencyKeyIsStablePerOperation(t *testing.T) {
	key := idempotencyKey("capture", [16]byte{1, 2, 3})
	if !strings.HasPrefix(key, "capture-") {
		t.Fatalf("key %q missing operation prefix", key)
	}
	if key != idempotencyKey("capture", [16]byte{1, 2, 3}) {
		t.Fatalf("key must be deterministic for the same transaction")
	}
}

func TestRedactHidesSensitiveKeys(t *testing.T) {
	if out := redact("source_token", "cnon:abc"); out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	if v := redact("status", "ok"); v != "ok" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{http.StatusTooManyRequests, pkgerrors.CodeGateway},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	g := &Gateway{}
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
		{
			name:     "card declined",
			status:   http.StatusBadRequest,
			payload:  `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"GENERIC_DECLINE"}]}`,
			wantCode: pkgerrors.CodeValidation,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			payload:  `{"errors":[{"category":"API_ERROR","code":"INTERNAL_SERVER_ERROR"}]}`,
			wantCode: pkgerrors.CodeDependency,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := g.mapSquareError(err, "operation")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not a domain error", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}

	plain := g.mapSquareError(errors.New("connection reset"), "operation")
	if !pkgerrors.HasCode(plain, pkgerrors.CodeDependency) {
		t.Fatalf("non-API errors map to dependency, got %v", plain)
	}
}

func TestExtractSquareErrors(t *testing.T) {
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload))
	got := extractSquareErrors(apiErr)
	if len(got) != 1 {
		t.Fatalf("expected 1 error, got %d", len(got))
	}
	if got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected error code %s", got[0].GetCode())
	}
}

func TestMapPaymentStatus(t *testing.T) {
	if got := mapPaymentStatus("COMPLETED", enums.TransactionStatusInitialized); got != enums.TransactionStatusCaptured {
		t.Fatalf("COMPLETED should map to captured, got %s", got)
	}
	if got := mapPaymentStatus("FAILED", enums.TransactionStatusInitialized); got != enums.TransactionStatusFailed {
		t.Fatalf("FAILED should map to failed, got %s", got)
	}
	if got := mapPaymentStatus("PENDING", enums.TransactionStatusInitialized); got != enums.TransactionStatusInitialized {
		t.Fatalf("PENDING keeps the local view, got %s", got)
	}
}
