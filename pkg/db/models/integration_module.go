package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/pkg/enums"
	"github.com/harborline/checkout-engine/pkg/types"
)

// IntegrationModule is a merchant-scoped pluggable capability (shipping
// carrier, payment gateway, tax provider, promotion engine). A merchant may
// register at most one module per (kind, code) pair.
type IntegrationModule struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID        `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:idx_modules_merchant_kind_code,priority:1"`
	Kind       enums.ModuleKind `gorm:"column:kind;type:module_kind;not null;uniqueIndex:idx_modules_merchant_kind_code,priority:2"`
	Code       string           `gorm:"column:code;not null;uniqueIndex:idx_modules_merchant_kind_code,priority:3"`
	Label      string           `gorm:"column:label;not null"`
	Enabled    bool             `gorm:"column:enabled;not null"`
	SortOrder  int              `gorm:"column:sort_order;not null;default:0"`
	Config     types.ConfigMap  `gorm:"column:config;type:jsonb"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (IntegrationModule) TableName() string {
	return "integration_modules"
}
