package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/flowmetry/backend/internal/domain/usage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExecutionRecordModel is the GORM model for workflow execution records
type ExecutionRecordModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ExecutionID  string          `gorm:"type:varchar(255);uniqueIndex;not null"`
	TenantID     uuid.UUID       `gorm:"type:uuid;index;not null"`
	WorkflowID   string          `gorm:"type:varchar(255);index;not null"`
	Status       string          `gorm:"type:varchar(20);not null"`
	StartedAt    time.Time       `gorm:"not null"`
	StoppedAt    *time.Time      ``
	DurationMS   int64           `gorm:"not null;default:0"`
	CostUSD      decimal.Decimal `gorm:"type:numeric(14,6);not null;default:0"`
	NodeFailures []byte          `gorm:"type:jsonb;default:'[]'"`
	Payload      []byte          `gorm:"type:jsonb;default:'{}'"`
	SourceIP     string          `gorm:"type:varchar(45)"`
	UserAgent    string          `gorm:"type:text"`
	CreatedAt    time.Time       `gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (ExecutionRecordModel) TableName() string {
	return "execution_records"
}

// ToEntity converts the model to a domain entity
func (m *ExecutionRecordModel) ToEntity() *usage.ExecutionRecord {
	status, _ := usage.ParseExecutionStatus(m.Status)

	var nodeFailures []string
	if len(m.NodeFailures) > 0 {
		_ = json.Unmarshal(m.NodeFailures, &nodeFailures)
	}

	var payload usage.Metadata
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}
	if payload == nil {
		payload = make(usage.Metadata)
	}

	return &usage.ExecutionRecord{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ExecutionID:  m.ExecutionID,
		TenantID:     m.TenantID,
		WorkflowID:   m.WorkflowID,
		Status:       status,
		StartedAt:    m.StartedAt,
		StoppedAt:    m.StoppedAt,
		DurationMS:   m.DurationMS,
		CostUSD:      m.CostUSD,
		NodeFailures: nodeFailures,
		Payload:      payload,
		SourceIP:     m.SourceIP,
		UserAgent:    m.UserAgent,
	}
}

// ExecutionRecordModelFromEntity creates a model from a domain entity
func ExecutionRecordModelFromEntity(e *usage.ExecutionRecord) *ExecutionRecordModel {
	nodeFailures := []byte("[]")
	if len(e.NodeFailures) > 0 {
		nodeFailures, _ = json.Marshal(e.NodeFailures)
	}

	payload := []byte("{}")
	if len(e.Payload) > 0 {
		payload, _ = json.Marshal(e.Payload)
	}

	return &ExecutionRecordModel{
		ID:           e.ID,
		ExecutionID:  e.ExecutionID,
		TenantID:     e.TenantID,
		WorkflowID:   e.WorkflowID,
		Status:       string(e.Status),
		StartedAt:    e.StartedAt,
		StoppedAt:    e.StoppedAt,
		DurationMS:   e.DurationMS,
		CostUSD:      e.CostUSD,
		NodeFailures: nodeFailures,
		Payload:      payload,
		SourceIP:     e.SourceIP,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// ExecutionRecordRepository implements the usage.ExecutionRecordRepository interface
type ExecutionRecordRepository struct {
	db *gorm.DB
}

// NewExecutionRecordRepository creates a new execution record repository
func NewExecutionRecordRepository(db *gorm.DB) *ExecutionRecordRepository {
	return &ExecutionRecordRepository{db: db}
}

// Upsert inserts the record or, when the execution ID already exists,
// overwrites the existing row with the new values
func (r *ExecutionRecordRepository) Upsert(ctx context.Context, record *usage.ExecutionRecord) error {
	model := ExecutionRecordModelFromEntity(record)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "execution_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tenant_id", "workflow_id", "status", "started_at", "stopped_at",
				"duration_ms", "cost_usd", "node_failures", "payload",
				"source_ip", "user_agent", "updated_at",
			}),
		}).
		Create(model).Error
}

// FindByExecutionID retrieves a record by its provider execution ID
func (r *ExecutionRecordRepository) FindByExecutionID(ctx context.Context, executionID string) (*usage.ExecutionRecord, error) {
	var model ExecutionRecordModel
	if err := r.db.WithContext(ctx).First(&model, "execution_id = ?", executionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// SumCostByTenant aggregates cost and request count for a tenant within a time range
func (r *ExecutionRecordRepository) SumCostByTenant(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (usage.MonthlyUsage, error) {
	var result struct {
		TotalCost    decimal.Decimal
		RequestCount int64
	}

	err := r.db.WithContext(ctx).
		Model(&ExecutionRecordModel{}).
		Select("COALESCE(SUM(cost_usd), 0) as total_cost, COUNT(*) as request_count").
		Where("tenant_id = ?", tenantID).
		Where("started_at >= ?", start).
		Where("started_at < ?", end).
		Scan(&result).Error

	if err != nil {
		return usage.MonthlyUsage{}, err
	}
	return usage.MonthlyUsage{
		TotalCostUSD: result.TotalCost,
		RequestCount: result.RequestCount,
	}, nil
}

// DeleteOlderThan removes execution records started before the given time
func (r *ExecutionRecordRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", before).
		Delete(&ExecutionRecordModel{})
	return result.RowsAffected, result.Error
}

// Ensure ExecutionRecordRepository implements the interface
var _ usage.ExecutionRecordRepository = (*ExecutionRecordRepository)(nil)
