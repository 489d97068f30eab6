package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonthlyUsage is the aggregate of a tenant's ledger entries in a period
type MonthlyUsage struct {
	TotalCostUSD decimal.Decimal
	RequestCount int64
}

// ExecutionRecordRepository defines persistence operations for the
// usage ledger. Upsert must be a single atomic write keyed on the
// unique execution_id column, never a read-then-insert sequence.
type ExecutionRecordRepository interface {
	// Upsert stores the record, overwriting any existing row with the
	// same execution ID (last write wins).
	Upsert(ctx context.Context, record *ExecutionRecord) error

	// FindByExecutionID retrieves a record by its external execution ID
	FindByExecutionID(ctx context.Context, executionID string) (*ExecutionRecord, error)

	// SumCostByTenant aggregates cost and request count for a tenant
	// over [start, end)
	SumCostByTenant(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (MonthlyUsage, error)

	// DeleteOlderThan removes records recorded before the given time,
	// returning how many rows were removed. Used by the retention job.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
