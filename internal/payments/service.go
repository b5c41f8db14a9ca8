package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/internal/registry"
	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/events"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/metrics"
	"github.com/harborline/checkout-engine/pkg/redis"
)

const idempotencyScope = "payment_init"

// InitInput is everything initTransaction needs.
type InitInput struct {
	MerchantID  uuid.UUID
	OrderID     uuid.UUID
	CustomerID  uuid.UUID
	ModuleCode  string
	AmountCents int64
	Currency    string
	Card        CardDetails
	// SourceToken is the tokenized payment source minted client side. The
	// raw card number never reaches a gateway.
	SourceToken string
}

// Service orchestrates the payment transaction lifecycle. Operations on the
// same transaction id are serialized; updates additionally carry an
// optimistic version check.
type Service interface {
	Init(ctx context.Context, input InitInput) (*models.PaymentTransaction, error)
	Capture(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	Refund(ctx context.Context, transactionID uuid.UUID, amountCents int64) (*models.PaymentTransaction, error)
	Reconcile(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	Get(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	GetByOrder(ctx context.Context, orderID, customerID uuid.UUID) (*models.PaymentTransaction, error)
}

type service struct {
	repo        Repository
	registry    registry.Service
	adapters    *registry.AdapterRegistry
	idempotency redis.IdempotencyStore
	publisher   events.Publisher
	logg        *logger.Logger
	metrics     *metrics.EngineMetrics

	idempotencyWindow time.Duration
	gatewayTimeout    time.Duration

	locks sync.Map // transaction id -> *sync.Mutex
	now   func() time.Time
}

// NewService wires the payment orchestrator. metrics may be nil; publisher
// may be a NoopPublisher but not nil.
func NewService(
	repo Repository,
	reg registry.Service,
	adapters *registry.AdapterRegistry,
	idempotency redis.IdempotencyStore,
	publisher events.Publisher,
	logg *logger.Logger,
	em *metrics.EngineMetrics,
	idempotencyWindow time.Duration,
	gatewayTimeout time.Duration,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if reg == nil {
		return nil, fmt.Errorf("module registry required")
	}
	if adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	if idempotency == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if idempotencyWindow <= 0 {
		return nil, fmt.Errorf("idempotency window must be positive")
	}
	if gatewayTimeout <= 0 {
		return nil, fmt.Errorf("gateway timeout must be positive")
	}
	return &service{
		repo:              repo,
		registry:          reg,
		adapters:          adapters,
		idempotency:       idempotency,
		publisher:         publisher,
		logg:              logg,
		metrics:           em,
		idempotencyWindow: idempotencyWindow,
		gatewayTimeout:    gatewayTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Init(ctx context.Context, input InitInput) (*models.PaymentTransaction, error) {
	if input.MerchantID == uuid.Nil || input.OrderID == uuid.Nil || input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant, order and customer ids are required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"field": "amount_cents"})
	}
	if input.ModuleCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment module code is required").
			WithDetails(map[string]any{"field": "module_code"})
	}
	// Card checks run before anything touches the gateway or the store.
	if err := input.Card.Validate(s.now()); err != nil {
		return nil, err
	}

	if _, err := s.registry.GetModule(ctx, input.MerchantID, enums.ModuleKindPayment, input.ModuleCode); err != nil {
		return nil, err
	}
	if _, ok := s.lookupGateway(input.ModuleCode); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no gateway adapter for module %q", input.ModuleCode))
	}

	// Repeated init calls for the same (order, customer) within the window
	// resolve to the existing transaction instead of creating a duplicate.
	key := s.idempotency.IdempotencyKey(idempotencyScope, fmt.Sprintf("%s:%s", input.OrderID, input.CustomerID))
	newID := uuid.New()
	won, err := s.idempotency.SetNX(ctx, key, newID.String(), s.idempotencyWindow)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserving idempotency key")
	}
	if !won {
		existingID, err := s.idempotency.Get(ctx, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading idempotency key")
		}
		parsed, err := uuid.Parse(existingID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "idempotency key holds malformed id")
		}
		return s.Get(ctx, parsed)
	}

	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}
	last4 := input.Card.Last4()
	txn := &models.PaymentTransaction{
		ID:          newID,
		MerchantID:  input.MerchantID,
		OrderID:     input.OrderID,
		CustomerID:  input.CustomerID,
		ModuleCode:  input.ModuleCode,
		Status:      enums.TransactionStatusInitialized,
		AmountCents: input.AmountCents,
		Currency:    currency,
		CardLast4:   &last4,
		Version:     1,
	}
	if token := input.SourceToken; token != "" {
		txn.SourceToken = &token
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		// Roll the reservation back so a retry can start clean.
		_ = s.idempotency.Del(ctx, key)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating transaction")
	}

	s.publish(ctx, events.TypePaymentInitialized, txn)
	return txn, nil
}

func (s *service) Capture(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	unlock := s.lock(transactionID)
	defer unlock()

	txn, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != enums.TransactionStatusInitialized {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot capture transaction in state %s", txn.Status)).
			WithDetails(map[string]any{"status": txn.Status})
	}

	gateway, ok := s.lookupGateway(txn.ModuleCode)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no gateway adapter for module %q", txn.ModuleCode))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	result, gatewayErr := gateway.Capture(callCtx, txn)
	elapsed := time.Since(start)

	if gatewayErr != nil {
		s.metrics.ObserveGateway("capture", "error", elapsed)
		if err := s.transitionFailed(ctx, txn, gatewayErr); err != nil {
			return nil, err
		}
		return nil, wrapGatewayError(gatewayErr, "capture failed")
	}

	s.metrics.ObserveGateway("capture", "ok", elapsed)
	now := s.now()
	txn.Status = enums.TransactionStatusCaptured
	txn.CapturedAt = &now
	if result != nil && result.Reference != "" {
		ref := result.Reference
		txn.GatewayRef = &ref
	}
	if err := s.update(ctx, txn); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypePaymentCaptured, txn)
	return txn, nil
}

func (s *service) Refund(ctx context.Context, transactionID uuid.UUID, amountCents int64) (*models.PaymentTransaction, error) {
	unlock := s.lock(transactionID)
	defer unlock()

	txn, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != enums.TransactionStatusCaptured {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot refund transaction in state %s", txn.Status)).
			WithDetails(map[string]any{"status": txn.Status})
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive").
			WithDetails(map[string]any{"field": "amount_cents"})
	}
	if amountCents > txn.RemainingCents() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds captured amount").
			WithDetails(map[string]any{
				"field":           "amount_cents",
				"remaining_cents": txn.RemainingCents(),
			})
	}

	gateway, ok := s.lookupGateway(txn.ModuleCode)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no gateway adapter for module %q", txn.ModuleCode))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	start := time.Now()
	_, gatewayErr := gateway.Refund(callCtx, txn, amountCents)
	elapsed := time.Since(start)

	if gatewayErr != nil {
		s.metrics.ObserveGateway("refund", "error", elapsed)
		if err := s.transitionFailed(ctx, txn, gatewayErr); err != nil {
			return nil, err
		}
		return nil, wrapGatewayError(gatewayErr, "refund failed")
	}

	s.metrics.ObserveGateway("refund", "ok", elapsed)
	txn.RefundedCents += amountCents
	if txn.RefundedCents == txn.AmountCents {
		now := s.now()
		txn.Status = enums.TransactionStatusRefunded
		txn.RefundedAt = &now
	}
	if err := s.update(ctx, txn); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypePaymentRefunded, txn)
	return txn, nil
}

// Reconcile reads the gateway's view of a transaction whose outcome is
// unknown and applies any legal transition locally. It never re-sends money
// movement calls.
func (s *service) Reconcile(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	unlock := s.lock(transactionID)
	defer unlock()

	txn, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	gateway, ok := s.lookupGateway(txn.ModuleCode)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no gateway adapter for module %q", txn.ModuleCode))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	status, err := gateway.Lookup(callCtx, txn)
	if err != nil {
		return nil, wrapGatewayError(err, "reconcile lookup failed")
	}
	if status == nil || status.Status == txn.Status {
		return txn, nil
	}
	if !txn.Status.CanTransitionTo(status.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("gateway reports %s but local state is %s", status.Status, txn.Status))
	}

	now := s.now()
	txn.Status = status.Status
	switch status.Status {
	case enums.TransactionStatusCaptured:
		txn.CapturedAt = &now
	case enums.TransactionStatusRefunded:
		txn.RefundedAt = &now
		txn.RefundedCents = txn.AmountCents
	case enums.TransactionStatusFailed:
		txn.FailedAt = &now
	}
	if status.Reference != "" {
		ref := status.Reference
		txn.GatewayRef = &ref
	}
	if status.RefundedCents > 0 {
		txn.RefundedCents = status.RefundedCents
	}
	if err := s.update(ctx, txn); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithTransactionID(ctx, txn.ID.String()), "transaction reconciled from gateway state")
	return txn, nil
}

func (s *service) Get(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	txn, err := s.repo.GetByID(ctx, transactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading transaction")
	}
	return txn, nil
}

// GetByOrder resolves the latest transaction for an (order, customer) pair,
// for callers that hold order context but not the transaction id.
func (s *service) GetByOrder(ctx context.Context, orderID, customerID uuid.UUID) (*models.PaymentTransaction, error) {
	if orderID == uuid.Nil || customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and customer ids are required")
	}
	txn, err := s.repo.GetByOrderAndCustomer(ctx, orderID, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found for order")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading transaction by order")
	}
	return txn, nil
}

func (s *service) transitionFailed(ctx context.Context, txn *models.PaymentTransaction, cause error) error {
	now := s.now()
	reason := cause.Error()
	txn.Status = enums.TransactionStatusFailed
	txn.FailureReason = &reason
	txn.FailedAt = &now
	if err := s.update(ctx, txn); err != nil {
		return err
	}
	s.publish(ctx, events.TypePaymentFailed, txn)
	return nil
}

func (s *service) update(ctx context.Context, txn *models.PaymentTransaction) error {
	err := s.repo.UpdateVersioned(ctx, txn)
	if errors.Is(err, ErrStaleVersion) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction modified concurrently")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating transaction")
	}
	return nil
}

// publish emits a lifecycle event after state is durable. Publish failures
// are logged, never surfaced.
func (s *service) publish(ctx context.Context, eventType events.Type, txn *models.PaymentTransaction) {
	payload := events.PaymentTransactionEvent{
		TransactionID: txn.ID,
		MerchantID:    txn.MerchantID,
		OrderID:       txn.OrderID,
		CustomerID:    txn.CustomerID,
		Status:        txn.Status,
		AmountCents:   txn.AmountCents,
		RefundedCents: txn.RefundedCents,
	}
	if txn.GatewayRef != nil {
		payload.GatewayRef = *txn.GatewayRef
	}
	if txn.FailureReason != nil {
		payload.FailureReason = *txn.FailureReason
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("publishing %s event failed: %v", eventType, err))
	}
}

func (s *service) lookupGateway(code string) (Gateway, bool) {
	raw, ok := s.adapters.Lookup(enums.ModuleKindPayment, code)
	if !ok {
		return nil, false
	}
	gateway, ok := raw.(Gateway)
	return gateway, ok
}

func (s *service) lock(id uuid.UUID) func() {
	raw, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := raw.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func wrapGatewayError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, message)
}
