package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/flowmetry/backend/internal/domain/usage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBudgetService(budgets *mockBudgetRepo, records *mockExecutionRecordRepo) *BudgetService {
	svc := NewBudgetService(budgets, records, BudgetServiceConfig{
		DefaultMonthlyUSD: decimal.RequireFromString("100"),
		DefaultBehavior:   billing.LimitBehaviorWarn,
	}, zap.NewNop())
	svc.now = func() time.Time {
		return time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func existingBudget(t *testing.T, tenantID uuid.UUID, monthlyUSD string, behavior billing.LimitBehavior) *billing.UsageBudget {
	t.Helper()
	budget, err := billing.NewUsageBudget(tenantID, decimal.RequireFromString(monthlyUSD), behavior)
	require.NoError(t, err)
	return budget
}

func TestBudgetService_CheckBudgetLimit(t *testing.T) {
	ctx := context.Background()
	monthStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		behavior      billing.LimitBehavior
		monthlyUSD    string
		currentSpend  string
		estimated     string
		wantAllowed   bool
		wantHasReason bool
	}{
		{
			name:          "block mode rejects when spend plus estimate crosses budget",
			behavior:      billing.LimitBehaviorBlock,
			monthlyUSD:    "100",
			currentSpend:  "95",
			estimated:     "10",
			wantAllowed:   false,
			wantHasReason: true,
		},
		{
			name:          "warn mode allows the same overage",
			behavior:      billing.LimitBehaviorWarn,
			monthlyUSD:    "100",
			currentSpend:  "95",
			estimated:     "10",
			wantAllowed:   true,
			wantHasReason: true,
		},
		{
			name:         "exactly at budget is allowed",
			behavior:     billing.LimitBehaviorBlock,
			monthlyUSD:   "100",
			currentSpend: "95",
			estimated:    "5",
			wantAllowed:  true,
		},
		{
			name:         "well under budget is allowed",
			behavior:     billing.LimitBehaviorBlock,
			monthlyUSD:   "100",
			currentSpend: "10",
			estimated:    "1",
			wantAllowed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenantID := uuid.New()
			budgets := new(mockBudgetRepo)
			records := new(mockExecutionRecordRepo)
			svc := newBudgetService(budgets, records)

			budgets.On("FindByTenantID", ctx, tenantID).
				Return(existingBudget(t, tenantID, tt.monthlyUSD, tt.behavior), nil)
			records.On("SumCostByTenant", ctx, tenantID, monthStart, mock.AnythingOfType("time.Time")).
				Return(usage.MonthlyUsage{
					TotalCostUSD: decimal.RequireFromString(tt.currentSpend),
					RequestCount: 42,
				}, nil)

			decision, err := svc.CheckBudgetLimit(ctx, tenantID, decimal.RequireFromString(tt.estimated))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			if tt.wantHasReason {
				assert.NotEmpty(t, decision.Reason)
			} else {
				assert.Empty(t, decision.Reason)
			}
			assert.Equal(t, int64(42), decision.Usage.RequestCount)
		})
	}
}

func TestBudgetService_CheckBudgetLimit_CreatesDefaultBudget(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	budgets := new(mockBudgetRepo)
	records := new(mockExecutionRecordRepo)
	svc := newBudgetService(budgets, records)

	budgets.On("FindByTenantID", ctx, tenantID).Return(nil, shared.ErrNotFound)
	budgets.On("Save", ctx, mock.AnythingOfType("*billing.UsageBudget")).Return(nil)
	records.On("SumCostByTenant", ctx, tenantID, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
		Return(usage.MonthlyUsage{TotalCostUSD: decimal.Zero}, nil)

	decision, err := svc.CheckBudgetLimit(ctx, tenantID, decimal.RequireFromString("0.002"))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Budget.MonthlyUSD.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, billing.LimitBehaviorWarn, decision.Budget.HardLimitBehavior)
	budgets.AssertCalled(t, "Save", ctx, mock.AnythingOfType("*billing.UsageBudget"))
}

func TestBudgetService_CheckBudgetLimit_LedgerError(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	budgets := new(mockBudgetRepo)
	records := new(mockExecutionRecordRepo)
	svc := newBudgetService(budgets, records)

	budgets.On("FindByTenantID", ctx, tenantID).
		Return(existingBudget(t, tenantID, "100", billing.LimitBehaviorBlock), nil)
	records.On("SumCostByTenant", ctx, tenantID, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
		Return(usage.MonthlyUsage{}, errors.New("connection refused"))

	_, err := svc.CheckBudgetLimit(ctx, tenantID, decimal.RequireFromString("1"))
	assert.ErrorContains(t, err, "failed to aggregate monthly usage")
}

func TestBudgetService_UpdateBudget(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	budgets := new(mockBudgetRepo)
	records := new(mockExecutionRecordRepo)
	svc := newBudgetService(budgets, records)

	budgets.On("FindByTenantID", ctx, tenantID).
		Return(existingBudget(t, tenantID, "100", billing.LimitBehaviorWarn), nil)
	budgets.On("Save", ctx, mock.AnythingOfType("*billing.UsageBudget")).Return(nil)

	updated, err := svc.UpdateBudget(ctx, tenantID, decimal.RequireFromString("500"), billing.LimitBehaviorBlock)
	require.NoError(t, err)
	assert.True(t, updated.MonthlyUSD.Equal(decimal.RequireFromString("500")))
	assert.Equal(t, billing.LimitBehaviorBlock, updated.HardLimitBehavior)

	t.Run("rejects invalid behavior", func(t *testing.T) {
		budgets.On("FindByTenantID", ctx, tenantID).
			Return(existingBudget(t, tenantID, "100", billing.LimitBehaviorWarn), nil)
		_, err := svc.UpdateBudget(ctx, tenantID, decimal.RequireFromString("500"), billing.LimitBehavior("explode"))
		assert.Error(t, err)
	})
}
