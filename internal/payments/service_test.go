package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/internal/registry"
	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	pkgerrors "github.com/harborline/checkout-engine/pkg/errors"
	"github.com/harborline/checkout-engine/pkg/events"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/types"
)

type fakePaymentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.PaymentTransaction

	createFn          func(ctx context.Context, txn *models.PaymentTransaction) error
	updateVersionedFn func(ctx context.Context, txn *models.PaymentTransaction) error
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{rows: make(map[uuid.UUID]*models.PaymentTransaction)}
}

func (f *fakePaymentRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakePaymentRepo) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *txn
	f.rows[txn.ID] = &copied
	return nil
}

func (f *fakePaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakePaymentRepo) GetByOrderAndCustomer(ctx context.Context, orderID, customerID uuid.UUID) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.PaymentTransaction
	for _, row := range f.rows {
		if row.OrderID != orderID || row.CustomerID != customerID {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakePaymentRepo) UpdateVersioned(ctx context.Context, txn *models.PaymentTransaction) error {
	if f.updateVersionedFn != nil {
		return f.updateVersionedFn(ctx, txn)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[txn.ID]
	if !ok || row.Version != txn.Version {
		return ErrStaleVersion
	}
	copied := *txn
	copied.Version = txn.Version + 1
	f.rows[txn.ID] = &copied
	txn.Version = copied.Version
	return nil
}

type fakeGateway struct {
	captureFn func(ctx context.Context, tx *models.PaymentTransaction) (*GatewayResult, error)
	refundFn  func(ctx context.Context, tx *models.PaymentTransaction, amountCents int64) (*GatewayResult, error)
	lookupFn  func(ctx context.Context, tx *models.PaymentTransaction) (*GatewayStatus, error)
}

func (f *fakeGateway) Capture(ctx context.Context, tx *models.PaymentTransaction) (*GatewayResult, error) {
	if f.captureFn != nil {
		return f.captureFn(ctx, tx)
	}
	return &GatewayResult{Reference: "gw-ref"}, nil
}

func (f *fakeGateway) Refund(ctx context.Context, tx *models.PaymentTransaction, amountCents int64) (*GatewayResult, error) {
	if f.refundFn != nil {
		return f.refundFn(ctx, tx, amountCents)
	}
	return &GatewayResult{Reference: "gw-refund"}, nil
}

func (f *fakeGateway) Lookup(ctx context.Context, tx *models.PaymentTransaction) (*GatewayStatus, error) {
	if f.lookupFn != nil {
		return f.lookupFn(ctx, tx)
	}
	return &GatewayStatus{Status: tx.Status}, nil
}

type fakeIdempotencyStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{values: make(map[string]string)}
}

func (f *fakeIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", errors.New("key not found")
	}
	return v, nil
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "checkout:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

type capturedEvent struct {
	eventType events.Type
	payload   events.PaymentTransactionEvent
}

type fakeEventPublisher struct {
	mu        sync.Mutex
	published []capturedEvent
	publishFn func(ctx context.Context, t events.Type, data any) error
}

func (f *fakeEventPublisher) Publish(ctx context.Context, t events.Type, data any) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, t, data)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, _ := data.(events.PaymentTransactionEvent)
	f.published = append(f.published, capturedEvent{eventType: t, payload: payload})
	return nil
}

func (f *fakeEventPublisher) types() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Type, 0, len(f.published))
	for _, e := range f.published {
		out = append(out, e.eventType)
	}
	return out
}

type fakeModuleRegistry struct {
	getModuleFn func(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (*models.IntegrationModule, error)
}

func (f *fakeModuleRegistry) ListModules(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind) ([]models.IntegrationModule, error) {
	return nil, nil
}

func (f *fakeModuleRegistry) GetModule(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (*models.IntegrationModule, error) {
	if f.getModuleFn != nil {
		return f.getModuleFn(ctx, merchantID, kind, code)
	}
	return &models.IntegrationModule{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Kind:       kind,
		Code:       code,
		Enabled:    true,
	}, nil
}

func (f *fakeModuleRegistry) GetConfiguration(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind, code string) (types.ConfigMap, error) {
	return types.ConfigMap{}, nil
}

func (f *fakeModuleRegistry) Reload(merchantID uuid.UUID) {}

type paymentsHarness struct {
	service   Service
	repo      *fakePaymentRepo
	gateway   *fakeGateway
	store     *fakeIdempotencyStore
	publisher *fakeEventPublisher
}

func newPaymentsHarness(t *testing.T) *paymentsHarness {
	t.Helper()

	repo := newFakePaymentRepo()
	gateway := &fakeGateway{}
	store := newFakeIdempotencyStore()
	publisher := &fakeEventPublisher{}

	adapters := registry.NewAdapterRegistry()
	if err := adapters.Register(enums.ModuleKindPayment, "square", gateway); err != nil {
		t.Fatalf("registering gateway: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	svc, err := NewService(repo, &fakeModuleRegistry{}, adapters, store, publisher, logg, nil, 24*time.Hour, 5*time.Second)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &paymentsHarness{
		service:   svc,
		repo:      repo,
		gateway:   gateway,
		store:     store,
		publisher: publisher,
	}
}

func validInitInput() InitInput {
	return InitInput{
		MerchantID:  uuid.New(),
		OrderID:     uuid.New(),
		CustomerID:  uuid.New(),
		ModuleCode:  "square",
		AmountCents: 2500,
		Currency:    "USD",
		Card: CardDetails{
			Number:   "4242 4242 4242 4242",
			ExpMonth: 12,
			ExpYear:  time.Now().UTC().Year() + 2,
			CVV:      "123",
			Holder:   "Jordan Li",
		},
	}
}

func TestInitCreatesInitializedTransaction(t *testing.T) {
	h := newPaymentsHarness(t)

	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if txn.Status != enums.TransactionStatusInitialized {
		t.Fatalf("expected initialized status, got %s", txn.Status)
	}
	if txn.CardLast4 == nil || *txn.CardLast4 != "4242" {
		t.Fatalf("expected card last4 4242, got %v", txn.CardLast4)
	}
	if got := h.publisher.types(); len(got) != 1 || got[0] != events.TypePaymentInitialized {
		t.Fatalf("expected single initialized event, got %v", got)
	}
}

func TestGetByOrderResolvesTransaction(t *testing.T) {
	h := newPaymentsHarness(t)
	input := validInitInput()

	created, err := h.service.Init(context.Background(), input)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	got, err := h.service.GetByOrder(context.Background(), input.OrderID, input.CustomerID)
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected transaction %s, got %s", created.ID, got.ID)
	}

	_, err = h.service.GetByOrder(context.Background(), uuid.New(), input.CustomerID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown order, got %v", err)
	}
}

func TestInitIsIdempotentWithinWindow(t *testing.T) {
	h := newPaymentsHarness(t)
	input := validInitInput()

	first, err := h.service.Init(context.Background(), input)
	if err != nil {
		t.Fatalf("first Init: %v", err)
	}
	second, err := h.service.Init(context.Background(), input)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same transaction, got %s and %s", first.ID, second.ID)
	}
	if got := h.publisher.types(); len(got) != 1 {
		t.Fatalf("duplicate init must not publish twice, got %v", got)
	}
}

func TestInitRejectsInvalidCardBeforeGateway(t *testing.T) {
	h := newPaymentsHarness(t)
	input := validInitInput()
	input.Card.Number = "4242 4242 4242 4243"

	_, err := h.service.Init(context.Background(), input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.repo.rows) != 0 {
		t.Fatalf("no transaction should be created for an invalid card")
	}
}

func TestInitRejectsNonPositiveAmount(t *testing.T) {
	h := newPaymentsHarness(t)
	input := validInitInput()
	input.AmountCents = 0

	_, err := h.service.Init(context.Background(), input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCaptureTransitionsToCaptured(t *testing.T) {
	h := newPaymentsHarness(t)
	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	captured, err := h.service.Capture(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if captured.Status != enums.TransactionStatusCaptured {
		t.Fatalf("expected captured status, got %s", captured.Status)
	}
	if captured.GatewayRef == nil || *captured.GatewayRef != "gw-ref" {
		t.Fatalf("expected gateway ref to be recorded, got %v", captured.GatewayRef)
	}
	if captured.CapturedAt == nil {
		t.Fatalf("captured_at should be stamped")
	}
	if got := h.publisher.types(); len(got) != 2 || got[1] != events.TypePaymentCaptured {
		t.Fatalf("expected captured event, got %v", got)
	}
}

func TestCaptureRejectsNonInitializedStates(t *testing.T) {
	h := newPaymentsHarness(t)
	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := h.service.Capture(context.Background(), txn.ID); err != nil {
		t.Fatalf("first Capture: %v", err)
	}

	_, err = h.service.Capture(context.Background(), txn.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("double capture should be a state conflict, got %v", err)
	}
}

func TestCaptureGatewayFailureMarksTransactionFailed(t *testing.T) {
	h := newPaymentsHarness(t)
	h.gateway.captureFn = func(ctx context.Context, tx *models.PaymentTransaction) (*GatewayResult, error) {
		return nil, errors.New("card declined")
	}

	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err = h.service.Capture(context.Background(), txn.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	stored, err := h.repo.GetByID(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "card declined" {
		t.Fatalf("expected failure reason recorded, got %v", stored.FailureReason)
	}
	if got := h.publisher.types(); len(got) != 2 || got[1] != events.TypePaymentFailed {
		t.Fatalf("expected failed event, got %v", got)
	}
}

func TestRefundOverRemainingAmountRejected(t *testing.T) {
	h := newPaymentsHarness(t)
	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := h.service.Capture(context.Background(), txn.ID); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	_, err = h.service.Refund(context.Background(), txn.ID, txn.AmountCents+1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for excess refund, got %v", err)
	}

	stored, err := h.repo.GetByID(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != enums.TransactionStatusCaptured || stored.RefundedCents != 0 {
		t.Fatalf("excess refund must leave the transaction untouched, got %s/%d", stored.Status, stored.RefundedCents)
	}
}

func TestPartialThenFullRefund(t *testing.T) {
	h := newPaymentsHarness(t)
	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := h.service.Capture(context.Background(), txn.ID); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	partial, err := h.service.Refund(context.Background(), txn.ID, 1000)
	if err != nil {
		t.Fatalf("partial Refund: %v", err)
	}
	if partial.Status != enums.TransactionStatusCaptured {
		t.Fatalf("partial refund keeps captured status, got %s", partial.Status)
	}
	if partial.RefundedCents != 1000 {
		t.Fatalf("expected 1000 refunded, got %d", partial.RefundedCents)
	}

	full, err := h.service.Refund(context.Background(), txn.ID, 1500)
	if err != nil {
		t.Fatalf("full Refund: %v", err)
	}
	if full.Status != enums.TransactionStatusRefunded {
		t.Fatalf("full refund should transition to refunded, got %s", full.Status)
	}
	if full.RefundedAt == nil {
		t.Fatalf("refunded_at should be stamped on full refund")
	}

	_, err = h.service.Refund(context.Background(), txn.ID, 1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("refunding a refunded transaction should conflict, got %v", err)
	}
}

func TestCaptureStaleVersionReturnsConflict(t *testing.T) {
	h := newPaymentsHarness(t)
	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	h.repo.updateVersionedFn = func(ctx context.Context, inner *models.PaymentTransaction) error {
		return ErrStaleVersion
	}

	_, err = h.service.Capture(context.Background(), txn.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestReconcileAppliesLegalTransition(t *testing.T) {
	h := newPaymentsHarness(t)
	h.gateway.lookupFn = func(ctx context.Context, tx *models.PaymentTransaction) (*GatewayStatus, error) {
		return &GatewayStatus{Status: enums.TransactionStatusCaptured, Reference: "gw-late"}, nil
	}

	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	reconciled, err := h.service.Reconcile(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if reconciled.Status != enums.TransactionStatusCaptured {
		t.Fatalf("expected captured after reconcile, got %s", reconciled.Status)
	}
	if reconciled.GatewayRef == nil || *reconciled.GatewayRef != "gw-late" {
		t.Fatalf("expected gateway ref applied, got %v", reconciled.GatewayRef)
	}
}

func TestReconcileRejectsIllegalTransition(t *testing.T) {
	h := newPaymentsHarness(t)
	h.gateway.lookupFn = func(ctx context.Context, tx *models.PaymentTransaction) (*GatewayStatus, error) {
		return &GatewayStatus{Status: enums.TransactionStatusRefunded}, nil
	}

	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err = h.service.Reconcile(context.Background(), txn.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("initialized cannot jump to refunded, got %v", err)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	h := newPaymentsHarness(t)
	h.publisher.publishFn = func(ctx context.Context, tp events.Type, data any) error {
		return errors.New("broker down")
	}

	txn, err := h.service.Init(context.Background(), validInitInput())
	if err != nil {
		t.Fatalf("Init should survive publish failure: %v", err)
	}
	if txn.Status != enums.TransactionStatusInitialized {
		t.Fatalf("unexpected status %s", txn.Status)
	}
}
