package persistence

import (
	"context"
	"testing"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupBudgetTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&UsageBudgetModel{})
	require.NoError(t, err)

	return db
}

func TestUsageBudgetRepository_Save(t *testing.T) {
	db := setupBudgetTestDB(t)
	repo := NewUsageBudgetRepository(db)
	ctx := context.Background()

	t.Run("creates budget for tenant", func(t *testing.T) {
		tenantID := uuid.New()
		budget, err := billing.NewUsageBudget(tenantID, decimal.RequireFromString("100"), billing.LimitBehaviorWarn)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, budget))

		found, err := repo.FindByTenantID(ctx, tenantID)
		require.NoError(t, err)
		assert.True(t, found.MonthlyUSD.Equal(decimal.RequireFromString("100")))
		assert.Equal(t, billing.LimitBehaviorWarn, found.HardLimitBehavior)
	})

	t.Run("second save updates existing budget", func(t *testing.T) {
		tenantID := uuid.New()
		budget, err := billing.NewUsageBudget(tenantID, decimal.RequireFromString("100"), billing.LimitBehaviorWarn)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, budget))

		require.NoError(t, budget.UpdateSettings(decimal.RequireFromString("250"), billing.LimitBehaviorBlock))
		require.NoError(t, repo.Save(ctx, budget))

		found, err := repo.FindByTenantID(ctx, tenantID)
		require.NoError(t, err)
		assert.True(t, found.MonthlyUSD.Equal(decimal.RequireFromString("250")))
		assert.Equal(t, billing.LimitBehaviorBlock, found.HardLimitBehavior)

		var count int64
		require.NoError(t, db.Model(&UsageBudgetModel{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestUsageBudgetRepository_FindByTenantID(t *testing.T) {
	db := setupBudgetTestDB(t)
	repo := NewUsageBudgetRepository(db)
	ctx := context.Background()

	t.Run("returns ErrNotFound for tenant without budget", func(t *testing.T) {
		_, err := repo.FindByTenantID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
