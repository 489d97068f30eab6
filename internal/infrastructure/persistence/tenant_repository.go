package persistence

import (
	"context"
	"time"

	"github.com/flowmetry/backend/internal/domain/identity"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantModel is the GORM model for tenants
type TenantModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                string    `gorm:"type:varchar(255);not null"`
	Status              string    `gorm:"type:varchar(20);not null;default:'active';index"`
	StripeCustomerID    string    `gorm:"type:varchar(255)"`
	MonthlyRevenueCents int64     `gorm:"not null;default:0"`
	Currency            string    `gorm:"type:varchar(10);not null;default:'usd'"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TenantModel) TableName() string {
	return "tenants"
}

// ToEntity converts the model to a domain entity
func (m *TenantModel) ToEntity() *identity.Tenant {
	return &identity.Tenant{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:                m.Name,
		Status:              identity.TenantStatus(m.Status),
		StripeCustomerID:    m.StripeCustomerID,
		MonthlyRevenueCents: m.MonthlyRevenueCents,
		Currency:            m.Currency,
	}
}

// TenantModelFromEntity creates a model from a domain entity
func TenantModelFromEntity(e *identity.Tenant) *TenantModel {
	return &TenantModel{
		ID:                  e.ID,
		Name:                e.Name,
		Status:              string(e.Status),
		StripeCustomerID:    e.StripeCustomerID,
		MonthlyRevenueCents: e.MonthlyRevenueCents,
		Currency:            e.Currency,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// TenantRepository implements the identity.TenantRepository interface
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// FindByID retrieves a tenant by its ID
func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var model TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindAllActive retrieves all active tenants
func (r *TenantRepository) FindAllActive(ctx context.Context) ([]*identity.Tenant, error) {
	var models []TenantModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(identity.TenantStatusActive)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tenants := make([]*identity.Tenant, len(models))
	for i, model := range models {
		tenants[i] = model.ToEntity()
	}
	return tenants, nil
}

// Save inserts or updates a tenant
func (r *TenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	model := TenantModelFromEntity(tenant)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure TenantRepository implements the interface
var _ identity.TenantRepository = (*TenantRepository)(nil)
