package billing

import (
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LimitBehavior controls what happens when a tenant exceeds its budget
type LimitBehavior string

const (
	// LimitBehaviorBlock rejects further usage once the budget is exceeded
	LimitBehaviorBlock LimitBehavior = "block"
	// LimitBehaviorWarn allows usage to continue and only notifies
	LimitBehaviorWarn LimitBehavior = "warn"
)

// IsValid returns true for a known limit behavior
func (b LimitBehavior) IsValid() bool {
	return b == LimitBehaviorBlock || b == LimitBehaviorWarn
}

// UsageBudget is a tenant's monthly spend ceiling. SpentUSD is an
// informational running total; authoritative spend is always derived
// from the usage ledger at check time.
type UsageBudget struct {
	shared.BaseEntity
	TenantID          uuid.UUID
	MonthlyUSD        decimal.Decimal
	SpentUSD          decimal.Decimal
	HardLimitBehavior LimitBehavior
}

// NewUsageBudget creates a budget with the given monthly ceiling
func NewUsageBudget(tenantID uuid.UUID, monthlyUSD decimal.Decimal, behavior LimitBehavior) (*UsageBudget, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if monthlyUSD.IsNegative() {
		return nil, shared.NewDomainError("INVALID_BUDGET", "Monthly budget cannot be negative")
	}
	if !behavior.IsValid() {
		return nil, shared.NewDomainError("INVALID_BEHAVIOR", "Hard limit behavior must be 'block' or 'warn'")
	}

	return &UsageBudget{
		BaseEntity:        shared.NewBaseEntity(),
		TenantID:          tenantID,
		MonthlyUSD:        monthlyUSD,
		SpentUSD:          decimal.Zero,
		HardLimitBehavior: behavior,
	}, nil
}

// UpdateSettings replaces the budget ceiling and behavior
func (b *UsageBudget) UpdateSettings(monthlyUSD decimal.Decimal, behavior LimitBehavior) error {
	if monthlyUSD.IsNegative() {
		return shared.NewDomainError("INVALID_BUDGET", "Monthly budget cannot be negative")
	}
	if !behavior.IsValid() {
		return shared.NewDomainError("INVALID_BEHAVIOR", "Hard limit behavior must be 'block' or 'warn'")
	}
	b.MonthlyUSD = monthlyUSD
	b.HardLimitBehavior = behavior
	b.Touch()
	return nil
}

// WouldExceed returns true if adding estimated to current spend would
// cross the monthly ceiling
func (b *UsageBudget) WouldExceed(currentSpend, estimated decimal.Decimal) bool {
	return currentSpend.Add(estimated).GreaterThan(b.MonthlyUSD)
}

// Blocks returns true when exceeding the budget should reject usage
func (b *UsageBudget) Blocks() bool {
	return b.HardLimitBehavior == LimitBehaviorBlock
}
