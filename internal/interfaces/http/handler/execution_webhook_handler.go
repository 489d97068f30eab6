package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/flowmetry/backend/internal/application/ingestion"
	"github.com/flowmetry/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ExecutionWebhookHandler receives execution-completion events from
// workflow runners. The endpoint is authenticated by HMAC signature,
// not by session, so it lives outside the versioned API group.
type ExecutionWebhookHandler struct {
	BaseHandler
	service *ingestion.WebhookService
	apiKeys map[string]struct{}
}

// NewExecutionWebhookHandler creates a new ExecutionWebhookHandler.
// apiKeys is the set of keys granted the higher rate limit tier.
func NewExecutionWebhookHandler(service *ingestion.WebhookService, apiKeys []string) *ExecutionWebhookHandler {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return &ExecutionWebhookHandler{
		service: service,
		apiKeys: keys,
	}
}

// Handle processes POST /webhook/execution
func (h *ExecutionWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// MaxBytesReader reports bodies over the configured cap here
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge,
				"Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "failed to read request body")
		return
	}

	apiKey := c.GetHeader("X-API-Key")
	_, hasValidAPIKey := h.apiKeys[apiKey]

	signature := c.GetHeader("X-Webhook-Signature")
	if signature == "" {
		signature = c.GetHeader("X-Hub-Signature-256")
	}

	req := ingestion.RequestInfo{
		SourceIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		Signature:      signature,
		APIKey:         apiKey,
		HasValidAPIKey: hasValidAPIKey,
	}

	record, decision, err := h.service.Ingest(c.Request.Context(), body, req)
	setRateLimitHeaders(c, decision)

	if err != nil {
		var rateErr *ingestion.RateLimitError
		var sigErr *ingestion.SignatureError
		var valErr *ingestion.ValidationError
		switch {
		case errors.As(err, &rateErr):
			h.TooManyRequests(c, "rate limit exceeded")
		case errors.As(err, &sigErr):
			h.Unauthorized(c, "invalid signature")
		case errors.As(err, &valErr):
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, valErr.Error())
		default:
			h.InternalError(c, "failed to record execution")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"execution_id": record.ExecutionID,
	})
}

// setRateLimitHeaders reports quota state on every webhook response
func setRateLimitHeaders(c *gin.Context, decision ingestion.Decision) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}
