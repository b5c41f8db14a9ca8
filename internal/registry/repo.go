package registry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
)

// Repository manages persistence for merchant integration modules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.IntegrationModule, error)
	ListByMerchantAndKind(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind) ([]models.IntegrationModule, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a module repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.IntegrationModule, error) {
	var modules []models.IntegrationModule
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("kind ASC, sort_order ASC, code ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *repository) ListByMerchantAndKind(ctx context.Context, merchantID uuid.UUID, kind enums.ModuleKind) ([]models.IntegrationModule, error) {
	var modules []models.IntegrationModule
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND kind = ?", merchantID, kind).
		Order("sort_order ASC, code ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}
