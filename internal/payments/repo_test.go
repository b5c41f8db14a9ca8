package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  module_code TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'initialized',
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  refunded_cents INTEGER NOT NULL DEFAULT 0,
  gateway_ref TEXT,
  failure_reason TEXT,
  card_last4 TEXT,
  card_brand TEXT,
  source_token TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  captured_at DATETIME,
  refunded_at DATETIME,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedTransaction(t *testing.T, repo Repository) *models.PaymentTransaction {
	t.Helper()
	txn := &models.PaymentTransaction{
		ID:          uuid.New(),
		MerchantID:  uuid.New(),
		OrderID:     uuid.New(),
		CustomerID:  uuid.New(),
		ModuleCode:  "square",
		Status:      enums.TransactionStatusInitialized,
		AmountCents: 5000,
		Currency:    "USD",
		Version:     1,
	}
	require.NoError(t, repo.Create(context.Background(), txn))
	return txn
}

func TestRepository_CreateAndGetByID(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	txn := seedTransaction(t, repo)

	got, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, txn.ID, got.ID)
	require.Equal(t, enums.TransactionStatusInitialized, got.Status)
	require.EqualValues(t, 1, got.Version)
}

func TestRepository_GetByIDNotFound(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_GetByOrderAndCustomer(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	txn := seedTransaction(t, repo)
	seedTransaction(t, repo) // different order, must not match

	got, err := repo.GetByOrderAndCustomer(context.Background(), txn.OrderID, txn.CustomerID)
	require.NoError(t, err)
	require.Equal(t, txn.ID, got.ID)

	_, err = repo.GetByOrderAndCustomer(context.Background(), uuid.New(), txn.CustomerID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_UpdateVersionedBumpsVersion(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	txn := seedTransaction(t, repo)

	ref := "gw-123"
	txn.Status = enums.TransactionStatusCaptured
	txn.GatewayRef = &ref
	require.NoError(t, repo.UpdateVersioned(context.Background(), txn))
	require.EqualValues(t, 2, txn.Version)

	got, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionStatusCaptured, got.Status)
	require.NotNil(t, got.GatewayRef)
	require.Equal(t, "gw-123", *got.GatewayRef)
	require.EqualValues(t, 2, got.Version)
}

func TestRepository_UpdateVersionedDetectsStaleWriter(t *testing.T) {
	repo := NewRepository(setupPaymentsTestDB(t))
	txn := seedTransaction(t, repo)

	// Two readers load version 1; the second writer must lose.
	stale, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)

	txn.Status = enums.TransactionStatusCaptured
	require.NoError(t, repo.UpdateVersioned(context.Background(), txn))

	stale.Status = enums.TransactionStatusFailed
	err = repo.UpdateVersioned(context.Background(), stale)
	require.ErrorIs(t, err, ErrStaleVersion)

	got, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionStatusCaptured, got.Status)
}

func TestRepository_WithTxRollbackDiscardsWrites(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)

	txn := &models.PaymentTransaction{
		ID:          uuid.New(),
		MerchantID:  uuid.New(),
		OrderID:     uuid.New(),
		CustomerID:  uuid.New(),
		ModuleCode:  "square",
		Status:      enums.TransactionStatusInitialized,
		AmountCents: 100,
		Currency:    "USD",
		Version:     1,
	}

	tx := db.Begin()
	require.NoError(t, repo.WithTx(tx).Create(context.Background(), txn))
	require.NoError(t, tx.Rollback().Error)

	_, err := repo.GetByID(context.Background(), txn.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
