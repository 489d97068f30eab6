package ingestion

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flowmetry/backend/internal/domain/usage"
	"github.com/flowmetry/backend/internal/infrastructure/ratelimit"
	"github.com/flowmetry/backend/internal/infrastructure/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "ingest-test-secret"

type memoryRecordRepo struct {
	records   map[string]*usage.ExecutionRecord
	upsertErr error
}

func newMemoryRecordRepo() *memoryRecordRepo {
	return &memoryRecordRepo{records: make(map[string]*usage.ExecutionRecord)}
}

func (m *memoryRecordRepo) Upsert(_ context.Context, record *usage.ExecutionRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[record.ExecutionID] = record
	return nil
}

func (m *memoryRecordRepo) FindByExecutionID(_ context.Context, executionID string) (*usage.ExecutionRecord, error) {
	if record, ok := m.records[executionID]; ok {
		return record, nil
	}
	return nil, errors.New("not found")
}

func (m *memoryRecordRepo) SumCostByTenant(_ context.Context, _ uuid.UUID, _, _ time.Time) (usage.MonthlyUsage, error) {
	return usage.MonthlyUsage{}, nil
}

func (m *memoryRecordRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newTestWebhookService(repo *memoryRecordRepo, ipLimit int64) *WebhookService {
	verifier := security.NewWebhookVerifier(testSecret, nil)
	limiter := newTestLimiter(ratelimit.NewMemoryCounterStore(), 1000, ipLimit)
	return NewWebhookService(verifier, limiter, repo, WebhookServiceConfig{
		DefaultCostPerExecution: decimal.RequireFromString("0.002"),
	}, zap.NewNop())
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(body []byte) RequestInfo {
	return RequestInfo{
		SourceIP:  "10.0.0.1",
		UserAgent: "runner/1.0",
		Signature: sign(body),
	}
}

func marshalPayload(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func TestIngestRecordsExecution(t *testing.T) {
	repo := newMemoryRecordRepo()
	service := newTestWebhookService(repo, 100)
	tenantID := uuid.New()

	startedAt := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	stoppedAt := startedAt.Add(5 * time.Second)
	body := marshalPayload(t, map[string]any{
		"execution_id":  "exec-1",
		"tenant_id":     tenantID.String(),
		"workflow_id":   "wf-1",
		"status":        "success",
		"started_at":    startedAt.Format(time.RFC3339),
		"stopped_at":    stoppedAt.Format(time.RFC3339),
		"node_failures": []string{"http_node"},
		"metadata":      map[string]any{"region": "eu-west-1"},
	})

	record, decision, err := service.Ingest(context.Background(), body, signedRequest(body))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	assert.Equal(t, "exec-1", record.ExecutionID)
	assert.Equal(t, tenantID, record.TenantID)
	assert.Equal(t, int64(5000), record.DurationMS)
	assert.Equal(t, "0.002", record.CostUSD.String())
	assert.Equal(t, []string{"http_node"}, record.NodeFailures)
	assert.Equal(t, "10.0.0.1", record.SourceIP)
	assert.Equal(t, "eu-west-1", record.Payload["region"])
	assert.Contains(t, repo.records, "exec-1")
}

func TestIngestAuditLogCarriesSourceIP(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	repo := newMemoryRecordRepo()
	verifier := security.NewWebhookVerifier(testSecret, nil)
	limiter := newTestLimiter(ratelimit.NewMemoryCounterStore(), 1000, 100)
	service := NewWebhookService(verifier, limiter, repo, WebhookServiceConfig{
		DefaultCostPerExecution: decimal.RequireFromString("0.002"),
	}, zap.New(core))

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-audit",
		"tenant_id":    uuid.New().String(),
		"workflow_id":  "wf-1",
	})

	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))
	require.NoError(t, err)

	logs := recorded.FilterMessage("Execution recorded").All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "10.0.0.1", fields["source_ip"])
	assert.Equal(t, "exec-audit", fields["execution_id"])
}

func TestIngestHonorsExplicitCost(t *testing.T) {
	repo := newMemoryRecordRepo()
	service := newTestWebhookService(repo, 100)

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-2",
		"tenant_id":    uuid.New().String(),
		"workflow_id":  "wf-1",
		"cost_usd":     "0.015",
	})

	record, _, err := service.Ingest(context.Background(), body, signedRequest(body))
	require.NoError(t, err)
	assert.Equal(t, "0.015", record.CostUSD.String())
}

func TestIngestRejectsBadSignature(t *testing.T) {
	repo := newMemoryRecordRepo()
	service := newTestWebhookService(repo, 100)

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-3",
		"tenant_id":    uuid.New().String(),
		"workflow_id":  "wf-1",
	})
	req := signedRequest(body)
	req.Signature = sign([]byte("different body"))

	_, decision, err := service.Ingest(context.Background(), body, req)
	assert.True(t, decision.Allowed)

	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
	assert.Empty(t, repo.records)
}

func TestIngestListsAllMissingFields(t *testing.T) {
	service := newTestWebhookService(newMemoryRecordRepo(), 100)

	body := []byte(`{"status":"success"}`)
	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.ElementsMatch(t, []string{"execution_id", "tenant_id", "workflow_id"}, valErr.Missing)
	assert.Contains(t, valErr.Error(), "execution_id")
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	service := newTestWebhookService(newMemoryRecordRepo(), 100)

	body := []byte(`{"execution_id":`)
	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestIngestRejectsNonUUIDTenant(t *testing.T) {
	service := newTestWebhookService(newMemoryRecordRepo(), 100)

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-4",
		"tenant_id":    "tenant-42",
		"workflow_id":  "wf-1",
	})
	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestIngestRejectsNegativeCost(t *testing.T) {
	service := newTestWebhookService(newMemoryRecordRepo(), 100)

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-5",
		"tenant_id":    uuid.New().String(),
		"workflow_id":  "wf-1",
		"cost_usd":     "-0.01",
	})
	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestIngestStopsAtRateLimit(t *testing.T) {
	repo := newMemoryRecordRepo()
	service := newTestWebhookService(repo, 1)

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-6",
		"tenant_id":    uuid.New().String(),
		"workflow_id":  "wf-1",
	})

	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))
	require.NoError(t, err)

	// Second request in the window is rejected before signature checks
	req := signedRequest(body)
	req.Signature = "garbage"
	_, decision, err := service.Ingest(context.Background(), body, req)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(1), decision.Limit)
}

func TestIngestSurfacesLedgerErrors(t *testing.T) {
	repo := newMemoryRecordRepo()
	repo.upsertErr = errors.New("connection refused")
	service := newTestWebhookService(repo, 100)

	body := marshalPayload(t, map[string]any{
		"execution_id": "exec-7",
		"tenant_id":    uuid.New().String(),
		"workflow_id":  "wf-1",
	})
	_, _, err := service.Ingest(context.Background(), body, signedRequest(body))

	require.Error(t, err)
	var valErr *ValidationError
	assert.False(t, errors.As(err, &valErr))
}
