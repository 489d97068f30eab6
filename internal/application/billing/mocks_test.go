package billing

import (
	"context"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/identity"
	"github.com/flowmetry/backend/internal/domain/usage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// mockBudgetRepo is a mock implementation of billing.UsageBudgetRepository
type mockBudgetRepo struct {
	mock.Mock
}

func (m *mockBudgetRepo) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.UsageBudget, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.UsageBudget), args.Error(1)
}

func (m *mockBudgetRepo) Save(ctx context.Context, budget *billing.UsageBudget) error {
	args := m.Called(ctx, budget)
	return args.Error(0)
}

// mockExecutionRecordRepo is a mock implementation of usage.ExecutionRecordRepository
type mockExecutionRecordRepo struct {
	mock.Mock
}

func (m *mockExecutionRecordRepo) Upsert(ctx context.Context, record *usage.ExecutionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockExecutionRecordRepo) FindByExecutionID(ctx context.Context, executionID string) (*usage.ExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usage.ExecutionRecord), args.Error(1)
}

func (m *mockExecutionRecordRepo) SumCostByTenant(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (usage.MonthlyUsage, error) {
	args := m.Called(ctx, tenantID, start, end)
	return args.Get(0).(usage.MonthlyUsage), args.Error(1)
}

func (m *mockExecutionRecordRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// mockTenantRepo is a mock implementation of identity.TenantRepository
type mockTenantRepo struct {
	mock.Mock
}

func (m *mockTenantRepo) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *mockTenantRepo) FindAllActive(ctx context.Context) ([]*identity.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*identity.Tenant), args.Error(1)
}

func (m *mockTenantRepo) Save(ctx context.Context, tenant *identity.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

// mockSLAMetricRepo is a mock implementation of billing.SLAMetricRepository
type mockSLAMetricRepo struct {
	mock.Mock
}

func (m *mockSLAMetricRepo) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]*billing.SLAMetricDaily, error) {
	args := m.Called(ctx, tenantID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.SLAMetricDaily), args.Error(1)
}

func (m *mockSLAMetricRepo) Save(ctx context.Context, metric *billing.SLAMetricDaily) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

// mockSLACreditRepo is a mock implementation of billing.SLACreditRepository
type mockSLACreditRepo struct {
	mock.Mock
}

func (m *mockSLACreditRepo) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) (*billing.SLACredit, error) {
	args := m.Called(ctx, tenantID, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SLACredit), args.Error(1)
}

func (m *mockSLACreditRepo) FindByTenantID(ctx context.Context, tenantID uuid.UUID) ([]*billing.SLACredit, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.SLACredit), args.Error(1)
}

func (m *mockSLACreditRepo) Save(ctx context.Context, credit *billing.SLACredit) error {
	args := m.Called(ctx, credit)
	return args.Error(0)
}

func (m *mockSLACreditRepo) Update(ctx context.Context, credit *billing.SLACredit) error {
	args := m.Called(ctx, credit)
	return args.Error(0)
}

// mockCreditIssuer is a mock implementation of CreditIssuer
type mockCreditIssuer struct {
	mock.Mock
}

func (m *mockCreditIssuer) IssueCredit(ctx context.Context, stripeCustomerID string, amountCents int64, currency, description string) (string, error) {
	args := m.Called(ctx, stripeCustomerID, amountCents, currency, description)
	return args.String(0), args.Error(1)
}
