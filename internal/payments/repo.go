package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/pkg/db/models"
)

// ErrStaleVersion signals a lost optimistic-lock race on update.
var ErrStaleVersion = errors.New("transaction version is stale")

// Repository manages persistence for payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetByOrderAndCustomer(ctx context.Context, orderID, customerID uuid.UUID) (*models.PaymentTransaction, error)
	// UpdateVersioned persists the record only when the stored version
	// still matches; on success the in-memory version is bumped.
	UpdateVersioned(ctx context.Context, txn *models.PaymentTransaction) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetByOrderAndCustomer returns the most recent transaction for the pair.
func (r *repository) GetByOrderAndCustomer(ctx context.Context, orderID, customerID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND customer_id = ?", orderID, customerID).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) UpdateVersioned(ctx context.Context, txn *models.PaymentTransaction) error {
	currentVersion := txn.Version
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND version = ?", txn.ID, currentVersion).
		Updates(map[string]any{
			"status":         txn.Status,
			"refunded_cents": txn.RefundedCents,
			"gateway_ref":    txn.GatewayRef,
			"failure_reason": txn.FailureReason,
			"captured_at":    txn.CapturedAt,
			"refunded_at":    txn.RefundedAt,
			"failed_at":      txn.FailedAt,
			"version":        currentVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	txn.Version = currentVersion + 1
	return nil
}
