package usage

import (
	"time"

	"github.com/flowmetry/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExecutionStatus represents the final (or latest known) state of a
// workflow execution as reported by the automation engine.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusWaiting ExecutionStatus = "waiting"
)

// IsValid returns true if the status is one of the known values
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusRunning, ExecutionStatusWaiting:
		return true
	}
	return false
}

// ParseExecutionStatus parses a status string, defaulting to "running"
// for empty input (an execution report without a status is in flight)
func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	if s == "" {
		return ExecutionStatusRunning, nil
	}
	status := ExecutionStatus(s)
	if !status.IsValid() {
		return "", shared.NewDomainError("INVALID_STATUS", "Invalid execution status: "+s)
	}
	return status, nil
}

// Metadata holds the arbitrary payload attached to an execution report
type Metadata map[string]any

// ExecutionRecord is one ledger entry per workflow execution report.
// ExecutionID is the external idempotency key: re-delivery of the same
// ID overwrites the stored record rather than duplicating it.
type ExecutionRecord struct {
	shared.BaseEntity
	ExecutionID  string
	TenantID     uuid.UUID
	WorkflowID   string
	Status       ExecutionStatus
	StartedAt    time.Time
	StoppedAt    *time.Time
	DurationMS   int64
	CostUSD      decimal.Decimal
	NodeFailures []string
	Payload      Metadata
	SourceIP     string
	UserAgent    string
}

// NewExecutionRecord creates a validated execution record. The duration
// is derived from stopped-started when both are present, falls back to
// explicitMS otherwise, and is zero when neither is available.
func NewExecutionRecord(
	tenantID uuid.UUID,
	workflowID string,
	executionID string,
	status ExecutionStatus,
	startedAt time.Time,
	stoppedAt *time.Time,
	explicitMS *int64,
) (*ExecutionRecord, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if workflowID == "" {
		return nil, shared.NewDomainError("INVALID_WORKFLOW", "Workflow ID cannot be empty")
	}
	if executionID == "" {
		return nil, shared.NewDomainError("INVALID_EXECUTION", "Execution ID cannot be empty")
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Invalid execution status")
	}

	return &ExecutionRecord{
		BaseEntity:  shared.NewBaseEntity(),
		ExecutionID: executionID,
		TenantID:    tenantID,
		WorkflowID:  workflowID,
		Status:      status,
		StartedAt:   startedAt,
		StoppedAt:   stoppedAt,
		DurationMS:  DeriveDurationMS(startedAt, stoppedAt, explicitMS),
		CostUSD:     decimal.Zero,
		Payload:     make(Metadata),
	}, nil
}

// DeriveDurationMS computes the execution duration in milliseconds.
// Negative derived durations (clock skew between reporter and engine)
// are clamped to zero.
func DeriveDurationMS(startedAt time.Time, stoppedAt *time.Time, explicitMS *int64) int64 {
	if stoppedAt != nil && !startedAt.IsZero() {
		ms := stoppedAt.Sub(startedAt).Milliseconds()
		if ms < 0 {
			return 0
		}
		return ms
	}
	if explicitMS != nil && *explicitMS > 0 {
		return *explicitMS
	}
	return 0
}

// WithCost sets the metered cost attributed to this execution
func (r *ExecutionRecord) WithCost(costUSD decimal.Decimal) *ExecutionRecord {
	r.CostUSD = costUSD
	return r
}

// WithNodeFailures records the ordered list of failing node names
func (r *ExecutionRecord) WithNodeFailures(failures []string) *ExecutionRecord {
	r.NodeFailures = failures
	return r
}

// WithRequestInfo sets caller metadata captured at the ingestion boundary
func (r *ExecutionRecord) WithRequestInfo(sourceIP, userAgent string) *ExecutionRecord {
	r.SourceIP = sourceIP
	r.UserAgent = userAgent
	return r
}

// WithPayload attaches the raw report payload
func (r *ExecutionRecord) WithPayload(payload Metadata) *ExecutionRecord {
	if payload != nil {
		r.Payload = payload
	}
	return r
}

// IsFinal returns true once the execution has reached a terminal state
func (r *ExecutionRecord) IsFinal() bool {
	return r.Status == ExecutionStatusSuccess || r.Status == ExecutionStatusError
}
