package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/identity"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreditIssuer posts an SLA credit with the external billing provider
// and returns the provider's credit identifier
type CreditIssuer interface {
	IssueCredit(ctx context.Context, stripeCustomerID string, amountCents int64, currency, description string) (string, error)
}

// SLACreditServiceConfig holds SLA credit computation settings
type SLACreditServiceConfig struct {
	TargetSLA          float64
	IssueTimeout       time.Duration
	CreditExpiryMonths int
}

// TenantResult is the outcome of credit computation for one tenant in
// a batch run
type TenantResult struct {
	TenantID uuid.UUID
	Credit   *billing.SLACredit
	Err      error
}

// JobSummary aggregates a monthly batch run
type JobSummary struct {
	PeriodStart    time.Time
	PeriodEnd      time.Time
	TotalTenants   int
	CreditsApplied int
	Errors         int
	Results        []TenantResult
}

// SLACreditService computes and issues monthly SLA credits from daily
// uptime metrics
type SLACreditService struct {
	tenants identity.TenantRepository
	metrics billing.SLAMetricRepository
	credits billing.SLACreditRepository
	issuer  CreditIssuer
	config  SLACreditServiceConfig
	logger  *zap.Logger
}

// NewSLACreditService creates an SLA credit service
func NewSLACreditService(
	tenants identity.TenantRepository,
	metrics billing.SLAMetricRepository,
	credits billing.SLACreditRepository,
	issuer CreditIssuer,
	config SLACreditServiceConfig,
	logger *zap.Logger,
) *SLACreditService {
	if config.TargetSLA == 0 {
		config.TargetSLA = billing.DefaultTargetSLA
	}
	if config.IssueTimeout == 0 {
		config.IssueTimeout = 10 * time.Second
	}
	if config.CreditExpiryMonths == 0 {
		config.CreditExpiryMonths = 3
	}
	return &SLACreditService{
		tenants: tenants,
		metrics: metrics,
		credits: credits,
		issuer:  issuer,
		config:  config,
		logger:  logger,
	}
}

// ComputeForTenant computes the SLA credit for one tenant and calendar
// month. Months with no metrics, or with uptime at or above target,
// yield no credit and return (nil, nil). A credit already computed for
// the period is returned unchanged.
func (s *SLACreditService) ComputeForTenant(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (*billing.SLACredit, error) {
	periodStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	existing, err := s.credits.FindByTenantAndPeriod(ctx, tenantID, periodStart, periodEnd)
	if err == nil {
		s.logger.Debug("Credit already computed for period",
			zap.String("tenant_id", tenantID.String()),
			zap.Time("period_start", periodStart))
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up existing credit: %w", err)
	}

	metrics, err := s.metrics.FindByTenantAndPeriod(ctx, tenantID, periodStart, periodEnd.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to load SLA metrics: %w", err)
	}
	if len(metrics) == 0 {
		return nil, nil
	}

	var uptimeSum float64
	for _, m := range metrics {
		uptimeSum += m.UptimePercentage
	}
	averageUptime := uptimeSum / float64(len(metrics))

	creditPct := billing.CreditPercentageFor(averageUptime, s.config.TargetSLA)
	if creditPct == 0 {
		s.logger.Debug("SLA met, no credit due",
			zap.String("tenant_id", tenantID.String()),
			zap.Float64("average_uptime", averageUptime))
		return nil, nil
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	amountCents := billing.CreditAmountCents(tenant.MonthlyRevenueCents, creditPct)
	credit, err := billing.NewSLACredit(
		tenantID, periodStart, periodEnd,
		averageUptime, s.config.TargetSLA,
		creditPct, amountCents, tenant.Currency,
		periodEnd.AddDate(0, s.config.CreditExpiryMonths, 0),
	)
	if err != nil {
		return nil, err
	}

	if err := s.credits.Save(ctx, credit); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Concurrent run won the insert; return its row
			return s.credits.FindByTenantAndPeriod(ctx, tenantID, periodStart, periodEnd)
		}
		return nil, fmt.Errorf("failed to save credit: %w", err)
	}

	s.logger.Info("SLA credit calculated",
		zap.String("tenant_id", tenantID.String()),
		zap.Float64("average_uptime", averageUptime),
		zap.Int("credit_percentage", creditPct),
		zap.Int64("credit_amount_cents", amountCents))

	s.issueCredit(ctx, tenant, credit)
	return credit, nil
}

// issueCredit tries to apply the credit with the billing provider.
// Issuance failure leaves the credit in the calculated state for the
// next run or a manual retry.
func (s *SLACreditService) issueCredit(ctx context.Context, tenant *identity.Tenant, credit *billing.SLACredit) {
	if s.issuer == nil || credit.CreditAmountCents <= 0 || tenant.StripeCustomerID == "" {
		return
	}

	issueCtx, cancel := context.WithTimeout(ctx, s.config.IssueTimeout)
	defer cancel()

	description := fmt.Sprintf("SLA credit for %s: %.3f%% uptime against %.1f%% target",
		credit.BillingPeriodStart.Format("2006-01"), credit.SLAPercentage, credit.TargetSLA)

	creditID, err := s.issuer.IssueCredit(issueCtx, tenant.StripeCustomerID, credit.CreditAmountCents, credit.Currency, description)
	if err != nil {
		s.logger.Error("Failed to issue SLA credit, leaving as calculated",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err))
		return
	}

	if err := credit.MarkApplied(creditID); err != nil {
		s.logger.Error("Failed to mark credit applied", zap.Error(err))
		return
	}
	if err := s.credits.Update(ctx, credit); err != nil {
		s.logger.Error("Failed to persist applied credit",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err))
	}
}

// RunMonthlyJob computes credits for every active tenant (or a single
// tenant when tenantID is set) for the given calendar month. One
// tenant's failure never aborts the batch.
func (s *SLACreditService) RunMonthlyJob(ctx context.Context, year int, month time.Month, tenantID *uuid.UUID) (*JobSummary, error) {
	var tenants []*identity.Tenant
	if tenantID != nil {
		tenant, err := s.tenants.FindByID(ctx, *tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tenant: %w", err)
		}
		tenants = []*identity.Tenant{tenant}
	} else {
		var err error
		tenants, err = s.tenants.FindAllActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active tenants: %w", err)
		}
	}

	periodStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	summary := &JobSummary{
		PeriodStart:  periodStart,
		PeriodEnd:    periodStart.AddDate(0, 1, 0),
		TotalTenants: len(tenants),
	}

	for _, tenant := range tenants {
		credit, err := s.ComputeForTenant(ctx, tenant.ID, year, month)
		result := TenantResult{TenantID: tenant.ID, Credit: credit, Err: err}
		summary.Results = append(summary.Results, result)

		if err != nil {
			summary.Errors++
			s.logger.Error("SLA credit computation failed for tenant",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
			continue
		}
		if credit != nil && credit.Status == billing.CreditStatusApplied {
			summary.CreditsApplied++
		}
	}

	s.logger.Info("SLA credit job completed",
		zap.Time("period_start", summary.PeriodStart),
		zap.Int("total_tenants", summary.TotalTenants),
		zap.Int("credits_applied", summary.CreditsApplied),
		zap.Int("errors", summary.Errors))

	return summary, nil
}
