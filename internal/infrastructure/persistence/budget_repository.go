package persistence

import (
	"context"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageBudgetModel is the GORM model for tenant usage budgets
type UsageBudgetModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	MonthlyUSD        decimal.Decimal `gorm:"type:numeric(14,6);not null"`
	HardLimitBehavior string          `gorm:"type:varchar(10);not null;default:'warn'"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageBudgetModel) TableName() string {
	return "usage_budgets"
}

// ToEntity converts the model to a domain entity
func (m *UsageBudgetModel) ToEntity() *billing.UsageBudget {
	return &billing.UsageBudget{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:          m.TenantID,
		MonthlyUSD:        m.MonthlyUSD,
		HardLimitBehavior: billing.LimitBehavior(m.HardLimitBehavior),
	}
}

// UsageBudgetModelFromEntity creates a model from a domain entity
func UsageBudgetModelFromEntity(e *billing.UsageBudget) *UsageBudgetModel {
	return &UsageBudgetModel{
		ID:                e.ID,
		TenantID:          e.TenantID,
		MonthlyUSD:        e.MonthlyUSD,
		HardLimitBehavior: string(e.HardLimitBehavior),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// UsageBudgetRepository implements the billing.UsageBudgetRepository interface
type UsageBudgetRepository struct {
	db *gorm.DB
}

// NewUsageBudgetRepository creates a new usage budget repository
func NewUsageBudgetRepository(db *gorm.DB) *UsageBudgetRepository {
	return &UsageBudgetRepository{db: db}
}

// FindByTenantID retrieves the budget for a tenant
func (r *UsageBudgetRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.UsageBudget, error) {
	var model UsageBudgetModel
	if err := r.db.WithContext(ctx).First(&model, "tenant_id = ?", tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Save inserts or updates the budget for a tenant
func (r *UsageBudgetRepository) Save(ctx context.Context, budget *billing.UsageBudget) error {
	model := UsageBudgetModelFromEntity(budget)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"monthly_usd", "hard_limit_behavior", "updated_at"}),
		}).
		Create(model).Error
}

// Ensure UsageBudgetRepository implements the interface
var _ billing.UsageBudgetRepository = (*UsageBudgetRepository)(nil)
