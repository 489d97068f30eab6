package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageBudgetRepository manages per-tenant monthly budgets
type UsageBudgetRepository interface {
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*UsageBudget, error)
	Save(ctx context.Context, budget *UsageBudget) error
}

// SLAMetricRepository reads daily uptime measurements
type SLAMetricRepository interface {
	FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]*SLAMetricDaily, error)
	Save(ctx context.Context, metric *SLAMetricDaily) error
}

// SLACreditRepository manages computed SLA credits. Save must reject a
// second credit for the same (tenant, period start, period end)
type SLACreditRepository interface {
	FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) (*SLACredit, error)
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) ([]*SLACredit, error)
	Save(ctx context.Context, credit *SLACredit) error
	Update(ctx context.Context, credit *SLACredit) error
}
