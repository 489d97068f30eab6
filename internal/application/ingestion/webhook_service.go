package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/flowmetry/backend/internal/domain/usage"
	"github.com/flowmetry/backend/internal/infrastructure/security"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateLimitError is returned when the caller exhausted its request window
type RateLimitError struct {
	Decision Decision
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

// SignatureError is returned when webhook authentication fails
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "invalid signature"
}

// ValidationError is returned when the payload is unusable
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
	}
	return e.Message
}

// ExecutionPayload is the inbound execution-completion event
type ExecutionPayload struct {
	ExecutionID     string         `json:"execution_id" validate:"required"`
	TenantID        string         `json:"tenant_id" validate:"required,uuid"`
	WorkflowID      string         `json:"workflow_id" validate:"required"`
	Status          string         `json:"status"`
	StartedAt       *time.Time     `json:"started_at"`
	StoppedAt       *time.Time     `json:"stopped_at"`
	ExecutionTimeMS *int64         `json:"execution_time_ms"`
	CostUSD         *string        `json:"cost_usd"`
	NodeFailures    []string       `json:"node_failures"`
	Metadata        map[string]any `json:"metadata"`
}

// RequestInfo carries transport-level facts used for audit logging and
// rate limiting
type RequestInfo struct {
	SourceIP       string
	UserAgent      string
	Signature      string
	APIKey         string
	HasValidAPIKey bool
}

// WebhookServiceConfig holds ingestion settings
type WebhookServiceConfig struct {
	DefaultCostPerExecution decimal.Decimal
}

// WebhookService is the ingestion gateway: it gates inbound execution
// events on rate limit and signature, then records them in the ledger
type WebhookService struct {
	verifier *security.WebhookVerifier
	limiter  *RateLimiter
	records  usage.ExecutionRecordRepository
	config   WebhookServiceConfig
	logger   *zap.Logger
}

// NewWebhookService creates the ingestion gateway
func NewWebhookService(
	verifier *security.WebhookVerifier,
	limiter *RateLimiter,
	records usage.ExecutionRecordRepository,
	config WebhookServiceConfig,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		verifier: verifier,
		limiter:  limiter,
		records:  records,
		config:   config,
		logger:   logger,
	}
}

// Ingest runs the full gate-and-record pipeline for one raw webhook
// body. The returned Decision carries rate limit metadata for response
// headers regardless of outcome.
func (s *WebhookService) Ingest(ctx context.Context, body []byte, req RequestInfo) (*usage.ExecutionRecord, Decision, error) {
	identity := req.SourceIP
	if req.HasValidAPIKey {
		identity = req.APIKey
	}

	decision := s.limiter.Check(ctx, identity, req.HasValidAPIKey)
	if !decision.Allowed {
		s.logger.Warn("Webhook rejected by rate limiter",
			zap.String("source_ip", req.SourceIP),
			zap.Bool("api_key", req.HasValidAPIKey))
		return nil, decision, &RateLimitError{Decision: decision}
	}

	if !s.verifier.Verify(body, req.Signature) {
		s.logger.Warn("Webhook signature verification failed",
			zap.String("source_ip", req.SourceIP),
			zap.String("user_agent", req.UserAgent),
			zap.String("presented_signature", req.Signature))
		return nil, decision, &SignatureError{Reason: "signature mismatch"}
	}

	var payload ExecutionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, decision, &ValidationError{Message: "malformed JSON payload"}
	}

	if err := s.validatePayload(&payload); err != nil {
		return nil, decision, err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return nil, decision, &ValidationError{Message: "tenant_id must be a UUID"}
	}

	record, err := s.buildRecord(tenantID, &payload, req)
	if err != nil {
		return nil, decision, &ValidationError{Message: err.Error()}
	}

	if err := s.records.Upsert(ctx, record); err != nil {
		s.logger.Error("Failed to record execution",
			zap.String("tenant_id", tenantID.String()),
			zap.String("execution_id", payload.ExecutionID),
			zap.Error(err))
		return nil, decision, fmt.Errorf("failed to record execution: %w", err)
	}

	s.logger.Info("Execution recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("execution_id", payload.ExecutionID),
		zap.String("workflow_id", payload.WorkflowID),
		zap.String("status", string(record.Status)),
		zap.Int64("duration_ms", record.DurationMS),
		zap.String("source_ip", req.SourceIP))

	return record, decision, nil
}

var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	// Report field names as their JSON tags
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *WebhookService) validatePayload(payload *ExecutionPayload) error {
	err := payloadValidator.Struct(payload)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Message: "invalid payload"}
	}

	var missing []string
	for _, e := range validationErrors {
		if e.Tag() == "required" {
			missing = append(missing, e.Field())
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return &ValidationError{Message: fmt.Sprintf("invalid field: %s", validationErrors[0].Field())}
}

func (s *WebhookService) buildRecord(tenantID uuid.UUID, payload *ExecutionPayload, req RequestInfo) (*usage.ExecutionRecord, error) {
	status, err := usage.ParseExecutionStatus(payload.Status)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	if payload.StartedAt != nil {
		startedAt = payload.StartedAt.UTC()
	}
	var stoppedAt *time.Time
	if payload.StoppedAt != nil {
		t := payload.StoppedAt.UTC()
		stoppedAt = &t
	}

	record, err := usage.NewExecutionRecord(tenantID, payload.WorkflowID, payload.ExecutionID,
		status, startedAt, stoppedAt, payload.ExecutionTimeMS)
	if err != nil {
		return nil, err
	}

	cost := s.config.DefaultCostPerExecution
	if payload.CostUSD != nil {
		parsed, err := decimal.NewFromString(*payload.CostUSD)
		if err != nil || parsed.IsNegative() {
			return nil, fmt.Errorf("cost_usd must be a non-negative decimal")
		}
		cost = parsed
	}
	record.WithCost(cost)
	record.WithNodeFailures(payload.NodeFailures)
	record.WithRequestInfo(req.SourceIP, req.UserAgent)
	if payload.Metadata != nil {
		record.WithPayload(payload.Metadata)
	}

	return record, nil
}
