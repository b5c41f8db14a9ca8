package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/harborline/checkout-engine/pkg/enums"
	"github.com/harborline/checkout-engine/pkg/types"
)

// PromotionRuleSet groups the ordered decision rows evaluated for one
// promotion concern, e.g. the coupon table consulted during the discount
// stage of total computation.
type PromotionRuleSet struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID       `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:idx_rule_sets_merchant_name,priority:1"`
	Name       string          `gorm:"column:name;not null;uniqueIndex:idx_rule_sets_merchant_name,priority:2"`
	Enabled    bool            `gorm:"column:enabled;not null"`
	Rules      []PromotionRule `gorm:"foreignKey:RuleSetID;references:ID"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (PromotionRuleSet) TableName() string {
	return "promotion_rule_sets"
}

// PromotionRule is one row of a decision table. Conditions is a JSONB object
// matched against the evaluation context; higher Priority wins, with Position
// breaking ties in declaration order.
type PromotionRule struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RuleSetID     uuid.UUID          `gorm:"column:rule_set_id;type:uuid;not null;index"`
	Position      int                `gorm:"column:position;not null"`
	Priority      int                `gorm:"column:priority;not null;default:0"`
	Conditions    types.ConfigMap    `gorm:"column:conditions;type:jsonb"`
	DiscountType  enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue string             `gorm:"column:discount_value;not null"`
	Label         string             `gorm:"column:label;not null"`
	StartsAt      *time.Time         `gorm:"column:starts_at"`
	ExpiresAt     *time.Time         `gorm:"column:expires_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (PromotionRule) TableName() string {
	return "promotion_rules"
}

// ActiveAt reports whether the rule's validity window covers now.
func (r PromotionRule) ActiveAt(now time.Time) bool {
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return true
}
