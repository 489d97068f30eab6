package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	billingapp "github.com/flowmetry/backend/internal/application/billing"
	"github.com/flowmetry/backend/internal/infrastructure/security"
	"github.com/flowmetry/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SLACreditHandler exposes the manual SLA credit job trigger for
// internal callers. Requests are authenticated by a timestamp-bound
// HMAC over the raw body.
type SLACreditHandler struct {
	BaseHandler
	creditService *billingapp.SLACreditService
	verifier      *security.ServiceVerifier
	logger        *zap.Logger
	now           func() time.Time
}

// NewSLACreditHandler creates a new SLACreditHandler
func NewSLACreditHandler(
	creditService *billingapp.SLACreditService,
	verifier *security.ServiceVerifier,
	logger *zap.Logger,
) *SLACreditHandler {
	return &SLACreditHandler{
		creditService: creditService,
		verifier:      verifier,
		logger:        logger,
		now:           time.Now,
	}
}

// RunCreditsRequest represents a manual SLA credit job trigger.
// Year and month default to the previous calendar month.
type RunCreditsRequest struct {
	TenantID *string `json:"tenant_id"`
	Year     int     `json:"year"`
	Month    int     `json:"month"`
}

// TenantResultResponse represents one tenant's outcome in a job run
type TenantResultResponse struct {
	TenantID         string `json:"tenant_id"`
	Status           string `json:"status"`
	CreditCents      int64  `json:"credit_cents,omitempty"`
	CreditPercentage int    `json:"credit_percentage,omitempty"`
	Error            string `json:"error,omitempty"`
}

// JobSummaryResponse represents the outcome of an SLA credit job run
type JobSummaryResponse struct {
	PeriodStart    string                 `json:"period_start"`
	PeriodEnd      string                 `json:"period_end"`
	TotalTenants   int                    `json:"total_tenants"`
	CreditsApplied int                    `json:"credits_applied"`
	Errors         int                    `json:"errors"`
	Results        []TenantResultResponse `json:"results"`
}

// Run processes POST /internal/sla-credits/run
func (h *SLACreditHandler) Run(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "failed to read request body")
		return
	}

	timestamp := c.GetHeader("X-Internal-Timestamp")
	signature := c.GetHeader("X-Internal-Signature")
	if err := h.verifier.Verify(body, timestamp, signature); err != nil {
		h.logger.Warn("Internal trigger authentication failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err))
		h.Unauthorized(c, "invalid signature")
		return
	}

	var req RunCreditsRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "malformed JSON payload")
			return
		}
	}
	if req.Month < 0 || req.Month > 12 {
		h.BadRequest(c, "month must be between 1 and 12")
		return
	}

	year, month := req.Year, time.Month(req.Month)
	if req.Year == 0 || req.Month == 0 {
		// Step back from the first of the current month: AddDate on the
		// current instant normalizes month-end days (Mar 31 minus one
		// month is Mar 3)
		now := h.now().UTC()
		prior := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		year, month = prior.Year(), prior.Month()
	}

	var tenantID *uuid.UUID
	if req.TenantID != nil {
		parsed, err := uuid.Parse(*req.TenantID)
		if err != nil {
			h.BadRequest(c, "tenant_id must be a UUID")
			return
		}
		tenantID = &parsed
	}

	summary, err := h.creditService.RunMonthlyJob(c.Request.Context(), year, month, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toJobSummaryResponse(summary))
}

func toJobSummaryResponse(summary *billingapp.JobSummary) JobSummaryResponse {
	resp := JobSummaryResponse{
		PeriodStart:    summary.PeriodStart.Format("2006-01-02"),
		PeriodEnd:      summary.PeriodEnd.Format("2006-01-02"),
		TotalTenants:   summary.TotalTenants,
		CreditsApplied: summary.CreditsApplied,
		Errors:         summary.Errors,
		Results:        make([]TenantResultResponse, 0, len(summary.Results)),
	}
	for _, result := range summary.Results {
		entry := TenantResultResponse{TenantID: result.TenantID.String()}
		switch {
		case result.Err != nil:
			entry.Status = "failed"
			entry.Error = result.Err.Error()
		case result.Credit == nil:
			entry.Status = "no_credit"
		default:
			entry.Status = string(result.Credit.Status)
			entry.CreditCents = result.Credit.CreditAmountCents
			entry.CreditPercentage = result.Credit.CreditPercentage
		}
		resp.Results = append(resp.Results, entry)
	}
	return resp
}
