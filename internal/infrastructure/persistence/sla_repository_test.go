package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSLATestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&SLAMetricDailyModel{}, &SLACreditModel{})
	require.NoError(t, err)

	return db
}

func newTestCredit(t *testing.T, tenantID uuid.UUID, periodStart time.Time) *billing.SLACredit {
	t.Helper()
	periodEnd := periodStart.AddDate(0, 1, 0)
	credit, err := billing.NewSLACredit(
		tenantID, periodStart, periodEnd,
		98.5, 99.9, 10, 5000, "usd",
		periodEnd.AddDate(0, 3, 0),
	)
	require.NoError(t, err)
	return credit
}

func TestSLACreditRepository_Save(t *testing.T) {
	db := setupSLATestDB(t)
	repo := NewSLACreditRepository(db)
	ctx := context.Background()

	periodStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("persists credit", func(t *testing.T) {
		tenantID := uuid.New()
		credit := newTestCredit(t, tenantID, periodStart)
		require.NoError(t, repo.Save(ctx, credit))

		found, err := repo.FindByTenantAndPeriod(ctx, tenantID, periodStart, periodStart.AddDate(0, 1, 0))
		require.NoError(t, err)
		assert.Equal(t, billing.CreditStatusCalculated, found.Status)
		assert.Equal(t, int64(5000), found.CreditAmountCents)
		assert.Equal(t, 10, found.CreditPercentage)
	})

	t.Run("rejects duplicate credit for same tenant and period", func(t *testing.T) {
		tenantID := uuid.New()
		require.NoError(t, repo.Save(ctx, newTestCredit(t, tenantID, periodStart)))

		err := repo.Save(ctx, newTestCredit(t, tenantID, periodStart))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("allows same period for different tenants", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, newTestCredit(t, uuid.New(), periodStart)))
		require.NoError(t, repo.Save(ctx, newTestCredit(t, uuid.New(), periodStart)))
	})
}

func TestSLACreditRepository_Update(t *testing.T) {
	db := setupSLATestDB(t)
	repo := NewSLACreditRepository(db)
	ctx := context.Background()

	periodStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	tenantID := uuid.New()
	credit := newTestCredit(t, tenantID, periodStart)
	require.NoError(t, repo.Save(ctx, credit))

	require.NoError(t, credit.MarkApplied("cbtxn_123"))
	require.NoError(t, repo.Update(ctx, credit))

	found, err := repo.FindByTenantAndPeriod(ctx, tenantID, periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, billing.CreditStatusApplied, found.Status)
	require.NotNil(t, found.StripeCreditID)
	assert.Equal(t, "cbtxn_123", *found.StripeCreditID)
}

func TestSLAMetricRepository_FindByTenantAndPeriod(t *testing.T) {
	db := setupSLATestDB(t)
	repo := NewSLAMetricRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	monthStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for day := 0; day < 3; day++ {
		metric := &billing.SLAMetricDaily{
			BaseEntity:       shared.NewBaseEntity(),
			TenantID:         tenantID,
			Date:             monthStart.AddDate(0, 0, day),
			UptimePercentage: 99.5,
		}
		require.NoError(t, repo.Save(ctx, metric))
	}

	// metric outside the window
	require.NoError(t, repo.Save(ctx, &billing.SLAMetricDaily{
		BaseEntity:       shared.NewBaseEntity(),
		TenantID:         tenantID,
		Date:             monthStart.AddDate(0, 1, 5),
		UptimePercentage: 90,
	}))

	metrics, err := repo.FindByTenantAndPeriod(ctx, tenantID, monthStart, monthStart.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Len(t, metrics, 3)
	for _, m := range metrics {
		assert.InDelta(t, 99.5, m.UptimePercentage, 0.001)
	}
}
