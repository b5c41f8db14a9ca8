package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/pkg/db/models"
)

// Repository loads promotion rule sets from the external rule store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByName(ctx context.Context, merchantID uuid.UUID, name string) (*models.PromotionRuleSet, error)
}

// ErrRuleSetNotFound signals the named set does not exist for the merchant.
var ErrRuleSetNotFound = errors.New("rule set not found")

type repository struct {
	db *gorm.DB
}

// NewRepository returns a rule set repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByName(ctx context.Context, merchantID uuid.UUID, name string) (*models.PromotionRuleSet, error) {
	var set models.PromotionRuleSet
	err := r.db.WithContext(ctx).
		Preload("Rules", func(db *gorm.DB) *gorm.DB {
			return db.Order("priority DESC, position ASC")
		}).
		Where("merchant_id = ? AND name = ? AND enabled = ?", merchantID, name, true).
		First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleSetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}
