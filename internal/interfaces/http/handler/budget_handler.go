package handler

import (
	billingapp "github.com/flowmetry/backend/internal/application/billing"
	"github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetHandler handles tenant budget settings endpoints
type BudgetHandler struct {
	BaseHandler
	budgetService *billingapp.BudgetService
}

// NewBudgetHandler creates a new BudgetHandler
func NewBudgetHandler(budgetService *billingapp.BudgetService) *BudgetHandler {
	return &BudgetHandler{
		budgetService: budgetService,
	}
}

// UpdateBudgetRequest represents a request to change a tenant's budget settings
type UpdateBudgetRequest struct {
	MonthlyUSD        string `json:"monthly_usd" binding:"required"`
	HardLimitBehavior string `json:"hard_limit_behavior" binding:"required,oneof=block warn"`
}

// BudgetResponse represents a tenant budget in the response
type BudgetResponse struct {
	TenantID          string `json:"tenant_id"`
	MonthlyUSD        string `json:"monthly_usd"`
	SpentUSD          string `json:"spent_usd"`
	HardLimitBehavior string `json:"hard_limit_behavior"`
	UpdatedAt         string `json:"updated_at"`
}

func toBudgetResponse(budget *billing.UsageBudget) BudgetResponse {
	return BudgetResponse{
		TenantID:          budget.TenantID.String(),
		MonthlyUSD:        budget.MonthlyUSD.String(),
		SpentUSD:          budget.SpentUSD.String(),
		HardLimitBehavior: string(budget.HardLimitBehavior),
		UpdatedAt:         budget.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Get returns the tenant's budget settings, creating defaults on first
// access
func (h *BudgetHandler) Get(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	budget, err := h.budgetService.GetBudget(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toBudgetResponse(budget))
}

// Update replaces the tenant's budget ceiling and limit behavior
func (h *BudgetHandler) Update(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	monthlyUSD, err := decimal.NewFromString(req.MonthlyUSD)
	if err != nil {
		h.BadRequest(c, "monthly_usd must be a decimal string")
		return
	}

	budget, err := h.budgetService.UpdateBudget(
		c.Request.Context(),
		tenantID,
		monthlyUSD,
		billing.LimitBehavior(req.HardLimitBehavior),
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toBudgetResponse(budget))
}
