package usage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveDurationMS(t *testing.T) {
	startedAt := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	stoppedAt := startedAt.Add(5 * time.Second)
	before := startedAt.Add(-time.Second)
	explicit := int64(1234)
	zero := int64(0)

	tests := []struct {
		name       string
		stoppedAt  *time.Time
		explicitMS *int64
		expected   int64
	}{
		{"stop minus start wins", &stoppedAt, &explicit, 5000},
		{"explicit fallback", nil, &explicit, 1234},
		{"neither available", nil, nil, 0},
		{"zero explicit ignored", nil, &zero, 0},
		{"clock skew clamps to zero", &before, &explicit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveDurationMS(startedAt, tt.stoppedAt, tt.explicitMS))
		})
	}
}

func TestParseExecutionStatus(t *testing.T) {
	t.Run("empty defaults to running", func(t *testing.T) {
		status, err := ParseExecutionStatus("")
		require.NoError(t, err)
		assert.Equal(t, ExecutionStatusRunning, status)
	})

	t.Run("known statuses", func(t *testing.T) {
		for _, s := range []string{"running", "success", "error", "waiting"} {
			status, err := ParseExecutionStatus(s)
			require.NoError(t, err)
			assert.Equal(t, ExecutionStatus(s), status)
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := ParseExecutionStatus("exploded")
		assert.Error(t, err)
	})
}

func TestNewExecutionRecord(t *testing.T) {
	tenantID := uuid.New()
	startedAt := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	t.Run("valid record", func(t *testing.T) {
		record, err := NewExecutionRecord(tenantID, "wf-1", "exec-1", ExecutionStatusSuccess, startedAt, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), record.DurationMS)
		assert.True(t, record.CostUSD.IsZero())
		assert.NotNil(t, record.Payload)
	})

	t.Run("missing identifiers rejected", func(t *testing.T) {
		_, err := NewExecutionRecord(uuid.Nil, "wf-1", "exec-1", ExecutionStatusSuccess, startedAt, nil, nil)
		assert.Error(t, err)
		_, err = NewExecutionRecord(tenantID, "", "exec-1", ExecutionStatusSuccess, startedAt, nil, nil)
		assert.Error(t, err)
		_, err = NewExecutionRecord(tenantID, "wf-1", "", ExecutionStatusSuccess, startedAt, nil, nil)
		assert.Error(t, err)
	})

	t.Run("builder helpers", func(t *testing.T) {
		record, err := NewExecutionRecord(tenantID, "wf-1", "exec-2", ExecutionStatusError, startedAt, nil, nil)
		require.NoError(t, err)

		record.WithCost(decimal.RequireFromString("0.002")).
			WithNodeFailures([]string{"http_node"}).
			WithRequestInfo("10.0.0.1", "runner/1.0")

		assert.Equal(t, "0.002", record.CostUSD.String())
		assert.Equal(t, []string{"http_node"}, record.NodeFailures)
		assert.Equal(t, "10.0.0.1", record.SourceIP)
		assert.True(t, record.IsFinal())
	})
}
