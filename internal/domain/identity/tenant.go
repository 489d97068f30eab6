package identity

import (
	"context"

	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// TenantStatus represents the lifecycle status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusInactive  TenantStatus = "inactive"
)

// Tenant is the unit of isolation and billing in the platform.
// All usage, budget and SLA entities are scoped by tenant ID.
type Tenant struct {
	shared.BaseEntity
	Name                string
	Status              TenantStatus
	StripeCustomerID    string
	MonthlyRevenueCents int64  // amount billed per month, used for SLA credit math
	Currency            string // ISO 4217, lowercase (Stripe convention)
}

// NewTenant creates a new active tenant
func NewTenant(name string) (*Tenant, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant name cannot be empty")
	}
	return &Tenant{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Status:     TenantStatusActive,
		Currency:   "usd",
	}, nil
}

// IsActive returns true if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Suspend marks the tenant as suspended
func (t *Tenant) Suspend() {
	t.Status = TenantStatusSuspended
}

// Activate marks the tenant as active
func (t *Tenant) Activate() {
	t.Status = TenantStatusActive
}

// SetBillingProfile updates the billing binding used for credit issuance
func (t *Tenant) SetBillingProfile(stripeCustomerID string, monthlyRevenueCents int64, currency string) {
	t.StripeCustomerID = stripeCustomerID
	t.MonthlyRevenueCents = monthlyRevenueCents
	if currency != "" {
		t.Currency = currency
	}
}

// TenantRepository defines persistence operations for tenants
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindAllActive(ctx context.Context) ([]*Tenant, error)
	Save(ctx context.Context, tenant *Tenant) error
}
