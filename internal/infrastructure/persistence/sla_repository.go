package persistence

import (
	"context"
	"time"

	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SLAMetricDailyModel is the GORM model for daily uptime measurements
type SLAMetricDailyModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID             uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sla_metric_tenant_date"`
	Date                 time.Time `gorm:"type:date;not null;uniqueIndex:idx_sla_metric_tenant_date"`
	UptimePercentage     float64   `gorm:"type:numeric(6,3);not null"`
	TotalDowntimeMinutes int       `gorm:"not null;default:0"`
	IncidentCount        int       `gorm:"not null;default:0"`
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (SLAMetricDailyModel) TableName() string {
	return "sla_metrics_daily"
}

// ToEntity converts the model to a domain entity
func (m *SLAMetricDailyModel) ToEntity() *billing.SLAMetricDaily {
	return &billing.SLAMetricDaily{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:             m.TenantID,
		Date:                 m.Date,
		UptimePercentage:     m.UptimePercentage,
		TotalDowntimeMinutes: m.TotalDowntimeMinutes,
		IncidentCount:        m.IncidentCount,
	}
}

// SLAMetricRepository implements the billing.SLAMetricRepository interface
type SLAMetricRepository struct {
	db *gorm.DB
}

// NewSLAMetricRepository creates a new SLA metric repository
func NewSLAMetricRepository(db *gorm.DB) *SLAMetricRepository {
	return &SLAMetricRepository{db: db}
}

// FindByTenantAndPeriod returns all daily metrics for a tenant between start and end inclusive
func (r *SLAMetricRepository) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]*billing.SLAMetricDaily, error) {
	var models []SLAMetricDailyModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("date >= ?", start).
		Where("date <= ?", end).
		Order("date ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	metrics := make([]*billing.SLAMetricDaily, len(models))
	for i, model := range models {
		metrics[i] = model.ToEntity()
	}
	return metrics, nil
}

// Save persists a daily metric
func (r *SLAMetricRepository) Save(ctx context.Context, metric *billing.SLAMetricDaily) error {
	model := &SLAMetricDailyModel{
		ID:                   metric.ID,
		TenantID:             metric.TenantID,
		Date:                 metric.Date,
		UptimePercentage:     metric.UptimePercentage,
		TotalDowntimeMinutes: metric.TotalDowntimeMinutes,
		IncidentCount:        metric.IncidentCount,
		CreatedAt:            metric.CreatedAt,
		UpdatedAt:            metric.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// Ensure SLAMetricRepository implements the interface
var _ billing.SLAMetricRepository = (*SLAMetricRepository)(nil)

// SLACreditModel is the GORM model for SLA credits
type SLACreditModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sla_credit_tenant_period"`
	BillingPeriodStart time.Time `gorm:"type:date;not null;uniqueIndex:idx_sla_credit_tenant_period"`
	BillingPeriodEnd   time.Time `gorm:"type:date;not null;uniqueIndex:idx_sla_credit_tenant_period"`
	SLAPercentage      float64   `gorm:"type:numeric(6,3);not null"`
	TargetSLA          float64   `gorm:"type:numeric(6,3);not null"`
	CreditPercentage   int       `gorm:"not null"`
	CreditAmountCents  int64     `gorm:"not null"`
	Currency           string    `gorm:"type:varchar(10);not null;default:'usd'"`
	Status             string    `gorm:"type:varchar(20);not null;default:'calculated'"`
	StripeCreditID     *string   `gorm:"type:varchar(255)"`
	ExpiresAt          time.Time `gorm:"not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (SLACreditModel) TableName() string {
	return "sla_credits"
}

// ToEntity converts the model to a domain entity
func (m *SLACreditModel) ToEntity() *billing.SLACredit {
	return &billing.SLACredit{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:           m.TenantID,
		BillingPeriodStart: m.BillingPeriodStart,
		BillingPeriodEnd:   m.BillingPeriodEnd,
		SLAPercentage:      m.SLAPercentage,
		TargetSLA:          m.TargetSLA,
		CreditPercentage:   m.CreditPercentage,
		CreditAmountCents:  m.CreditAmountCents,
		Currency:           m.Currency,
		Status:             billing.CreditStatus(m.Status),
		StripeCreditID:     m.StripeCreditID,
		ExpiresAt:          m.ExpiresAt,
	}
}

// SLACreditModelFromEntity creates a model from a domain entity
func SLACreditModelFromEntity(e *billing.SLACredit) *SLACreditModel {
	return &SLACreditModel{
		ID:                 e.ID,
		TenantID:           e.TenantID,
		BillingPeriodStart: e.BillingPeriodStart,
		BillingPeriodEnd:   e.BillingPeriodEnd,
		SLAPercentage:      e.SLAPercentage,
		TargetSLA:          e.TargetSLA,
		CreditPercentage:   e.CreditPercentage,
		CreditAmountCents:  e.CreditAmountCents,
		Currency:           e.Currency,
		Status:             string(e.Status),
		StripeCreditID:     e.StripeCreditID,
		ExpiresAt:          e.ExpiresAt,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

// SLACreditRepository implements the billing.SLACreditRepository interface
type SLACreditRepository struct {
	db *gorm.DB
}

// NewSLACreditRepository creates a new SLA credit repository
func NewSLACreditRepository(db *gorm.DB) *SLACreditRepository {
	return &SLACreditRepository{db: db}
}

// FindByTenantAndPeriod retrieves the credit for a tenant and billing period
func (r *SLACreditRepository) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) (*billing.SLACredit, error) {
	var model SLACreditModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("billing_period_start = ?", periodStart).
		Where("billing_period_end = ?", periodEnd).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// FindByTenantID retrieves all credits for a tenant, most recent period first
func (r *SLACreditRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) ([]*billing.SLACredit, error) {
	var models []SLACreditModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("billing_period_start DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	credits := make([]*billing.SLACredit, len(models))
	for i, model := range models {
		credits[i] = model.ToEntity()
	}
	return credits, nil
}

// Save persists a new credit. The unique index on (tenant_id, period)
// rejects a duplicate computation for the same billing period.
func (r *SLACreditRepository) Save(ctx context.Context, credit *billing.SLACredit) error {
	model := SLACreditModelFromEntity(credit)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing credit
func (r *SLACreditRepository) Update(ctx context.Context, credit *billing.SLACredit) error {
	model := SLACreditModelFromEntity(credit)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure SLACreditRepository implements the interface
var _ billing.SLACreditRepository = (*SLACreditRepository)(nil)
