package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/flowmetry/backend/internal/domain/usage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BudgetServiceConfig holds defaults applied when a tenant has no
// budget row yet
type BudgetServiceConfig struct {
	DefaultMonthlyUSD decimal.Decimal
	DefaultBehavior   billing.LimitBehavior
}

// BudgetDecision is the outcome of a budget check
type BudgetDecision struct {
	Allowed bool
	Reason  string
	Budget  *billing.UsageBudget
	Usage   usage.MonthlyUsage
}

// BudgetService enforces per-tenant monthly spend ceilings. Spend is
// always derived from the usage ledger, never from a cached counter.
type BudgetService struct {
	budgets billing.UsageBudgetRepository
	records usage.ExecutionRecordRepository
	config  BudgetServiceConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewBudgetService creates a budget service
func NewBudgetService(
	budgets billing.UsageBudgetRepository,
	records usage.ExecutionRecordRepository,
	config BudgetServiceConfig,
	logger *zap.Logger,
) *BudgetService {
	return &BudgetService{
		budgets: budgets,
		records: records,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckBudgetLimit decides whether estimated additional spend fits the
// tenant's monthly budget. The check is advisory and never debits
// anything; a tenant in warn mode is always allowed.
func (s *BudgetService) CheckBudgetLimit(ctx context.Context, tenantID uuid.UUID, estimatedCost decimal.Decimal) (*BudgetDecision, error) {
	budget, err := s.getOrCreateBudget(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthUsage, err := s.records.SumCostByTenant(ctx, tenantID, monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly usage: %w", err)
	}
	budget.SpentUSD = monthUsage.TotalCostUSD

	decision := &BudgetDecision{Allowed: true, Budget: budget, Usage: monthUsage}

	if budget.WouldExceed(monthUsage.TotalCostUSD, estimatedCost) {
		if budget.Blocks() {
			decision.Allowed = false
			decision.Reason = fmt.Sprintf(
				"monthly budget of $%s exceeded: current spend $%s plus estimated $%s",
				budget.MonthlyUSD.StringFixed(2),
				monthUsage.TotalCostUSD.StringFixed(2),
				estimatedCost.StringFixed(2))
		} else {
			decision.Reason = fmt.Sprintf(
				"monthly budget of $%s exceeded with current spend $%s, usage allowed under warn policy",
				budget.MonthlyUSD.StringFixed(2),
				monthUsage.TotalCostUSD.StringFixed(2))
			s.logger.Warn("Tenant over budget under warn policy",
				zap.String("tenant_id", tenantID.String()),
				zap.String("budget_usd", budget.MonthlyUSD.String()),
				zap.String("spent_usd", monthUsage.TotalCostUSD.String()))
		}
	}

	return decision, nil
}

// GetBudget returns the tenant's budget, creating it with defaults when absent
func (s *BudgetService) GetBudget(ctx context.Context, tenantID uuid.UUID) (*billing.UsageBudget, error) {
	return s.getOrCreateBudget(ctx, tenantID)
}

// UpdateBudget replaces the tenant's budget settings
func (s *BudgetService) UpdateBudget(ctx context.Context, tenantID uuid.UUID, monthlyUSD decimal.Decimal, behavior billing.LimitBehavior) (*billing.UsageBudget, error) {
	budget, err := s.getOrCreateBudget(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := budget.UpdateSettings(monthlyUSD, behavior); err != nil {
		return nil, err
	}
	if err := s.budgets.Save(ctx, budget); err != nil {
		return nil, fmt.Errorf("failed to save budget: %w", err)
	}

	s.logger.Info("Budget updated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("monthly_usd", monthlyUSD.String()),
		zap.String("behavior", string(behavior)))

	return budget, nil
}

func (s *BudgetService) getOrCreateBudget(ctx context.Context, tenantID uuid.UUID) (*billing.UsageBudget, error) {
	budget, err := s.budgets.FindByTenantID(ctx, tenantID)
	if err == nil {
		return budget, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to load budget: %w", err)
	}

	budget, err = billing.NewUsageBudget(tenantID, s.config.DefaultMonthlyUSD, s.config.DefaultBehavior)
	if err != nil {
		return nil, err
	}
	if err := s.budgets.Save(ctx, budget); err != nil {
		return nil, fmt.Errorf("failed to create default budget: %w", err)
	}

	s.logger.Debug("Created default budget for tenant",
		zap.String("tenant_id", tenantID.String()),
		zap.String("monthly_usd", budget.MonthlyUSD.String()))

	return budget, nil
}
