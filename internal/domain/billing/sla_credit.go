package billing

import (
	"time"

	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultTargetSLA is the contractual uptime target used when a tenant
// has no specific agreement
const DefaultTargetSLA = 99.9

// CreditStatus tracks whether an SLA credit reached the billing provider
type CreditStatus string

const (
	// CreditStatusCalculated means the credit is recorded locally but
	// issuance with the billing provider has not (yet) succeeded
	CreditStatusCalculated CreditStatus = "calculated"
	// CreditStatusApplied means the billing provider confirmed the credit
	CreditStatusApplied CreditStatus = "applied"
)

// SLAMetricDaily is one uptime measurement per tenant per calendar day
type SLAMetricDaily struct {
	shared.BaseEntity
	TenantID             uuid.UUID
	Date                 time.Time
	UptimePercentage     float64
	TotalDowntimeMinutes int
	IncidentCount        int
}

// SLACredit is a contractual billing rebate for one tenant and billing
// period. At most one row may exist per (tenant, period start, period
// end); recomputation for the same period must return the existing row.
type SLACredit struct {
	shared.BaseEntity
	TenantID           uuid.UUID
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	SLAPercentage      float64
	TargetSLA          float64
	CreditPercentage   int
	CreditAmountCents  int64
	Currency           string
	Status             CreditStatus
	StripeCreditID     *string
	ExpiresAt          time.Time
}

// NewSLACredit creates a credit in the calculated state
func NewSLACredit(
	tenantID uuid.UUID,
	periodStart, periodEnd time.Time,
	slaPercentage, targetSLA float64,
	creditPercentage int,
	creditAmountCents int64,
	currency string,
	expiresAt time.Time,
) (*SLACredit, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !periodEnd.After(periodStart) {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Billing period end must be after start")
	}
	if creditPercentage <= 0 {
		return nil, shared.NewDomainError("INVALID_CREDIT", "Credit percentage must be positive")
	}
	if creditAmountCents < 0 {
		return nil, shared.NewDomainError("INVALID_CREDIT", "Credit amount cannot be negative")
	}
	if currency == "" {
		currency = "usd"
	}

	return &SLACredit{
		BaseEntity:         shared.NewBaseEntity(),
		TenantID:           tenantID,
		BillingPeriodStart: periodStart,
		BillingPeriodEnd:   periodEnd,
		SLAPercentage:      slaPercentage,
		TargetSLA:          targetSLA,
		CreditPercentage:   creditPercentage,
		CreditAmountCents:  creditAmountCents,
		Currency:           currency,
		Status:             CreditStatusCalculated,
		ExpiresAt:          expiresAt,
	}, nil
}

// MarkApplied transitions the credit to applied once the billing
// provider confirms issuance
func (c *SLACredit) MarkApplied(stripeCreditID string) error {
	if c.Status == CreditStatusApplied {
		return shared.NewDomainError("INVALID_STATE", "Credit is already applied")
	}
	c.Status = CreditStatusApplied
	c.StripeCreditID = &stripeCreditID
	c.Touch()
	return nil
}

// IsExpired returns true once the credit can no longer be redeemed
func (c *SLACredit) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CreditPercentageFor maps a measured average uptime to a credit
// percentage against the target SLA. Tiers are evaluated in descending
// order of uptime; meeting the target earns no credit.
func CreditPercentageFor(averageUptime, targetSLA float64) int {
	switch {
	case averageUptime >= targetSLA:
		return 0
	case averageUptime >= 99.0:
		return 5
	case averageUptime >= 98.0:
		return 10
	default:
		return 20
	}
}

// CreditAmountCents computes the monetary credit for a billing period,
// rounding down to whole cents
func CreditAmountCents(monthlyRevenueCents int64, creditPercentage int) int64 {
	return monthlyRevenueCents * int64(creditPercentage) / 100
}
