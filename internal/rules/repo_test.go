package rules

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/harborline/checkout-engine/pkg/db/models"
	"github.com/harborline/checkout-engine/pkg/enums"
	"github.com/harborline/checkout-engine/pkg/types"
)

func setupRulesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ruleSets := `
CREATE TABLE IF NOT EXISTS promotion_rule_sets (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (merchant_id, name)
);`
	rules := `
CREATE TABLE IF NOT EXISTS promotion_rules (
  id TEXT PRIMARY KEY,
  rule_set_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  priority INTEGER NOT NULL DEFAULT 0,
  conditions TEXT,
  discount_type TEXT NOT NULL,
  discount_value TEXT NOT NULL,
  label TEXT NOT NULL,
  starts_at DATETIME,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ruleSets).Error)
	require.NoError(t, db.Exec(rules).Error)
	return db
}

func TestRepository_GetByNamePreloadsOrderedRules(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	set := models.PromotionRuleSet{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Name:       "PromoCoupon",
		Enabled:    true,
	}
	require.NoError(t, db.Create(&set).Error)

	for _, r := range []models.PromotionRule{
		{ID: uuid.New(), RuleSetID: set.ID, Position: 2, Priority: 0, Label: "second",
			DiscountType: enums.DiscountTypePercentage, DiscountValue: "0.05"},
		{ID: uuid.New(), RuleSetID: set.ID, Position: 1, Priority: 10, Label: "first",
			DiscountType: enums.DiscountTypePercentage, DiscountValue: "0.10",
			Conditions: types.ConfigMap{"promo_code": "SAVE10"}},
	} {
		rule := r
		require.NoError(t, db.Create(&rule).Error)
	}

	got, err := repo.GetByName(ctx, merchantID, "PromoCoupon")
	require.NoError(t, err)
	require.Len(t, got.Rules, 2)
	require.Equal(t, "first", got.Rules[0].Label)
	require.Equal(t, "second", got.Rules[1].Label)
}

func TestRepository_GetByNameMissingAndDisabled(t *testing.T) {
	db := setupRulesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	_, err := repo.GetByName(ctx, merchantID, "PromoCoupon")
	require.ErrorIs(t, err, ErrRuleSetNotFound)

	disabled := models.PromotionRuleSet{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Name:       "PromoCoupon",
		Enabled:    false,
	}
	require.NoError(t, db.Create(&disabled).Error)

	_, err = repo.GetByName(ctx, merchantID, "PromoCoupon")
	require.ErrorIs(t, err, ErrRuleSetNotFound)
}
