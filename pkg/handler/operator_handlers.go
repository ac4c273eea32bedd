package handler

import (
	"net/http"

	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/service"
	"github.com/gin-gonic/gin"
)

// OperatorHandler handles operator status and subscription requests
type OperatorHandler struct {
	operators *service.OperatorService
}

// NewOperatorHandler creates a new OperatorHandler
func NewOperatorHandler(operators *service.OperatorService) *OperatorHandler {
	return &OperatorHandler{operators: operators}
}

// RegisterRoutes registers operator routes
func (h *OperatorHandler) RegisterRoutes(r *gin.RouterGroup) {
	operators := r.Group("/operators/:operatorId")
	{
		operators.PUT("/status", h.UpdateStatus)
		operators.GET("/status", h.GetStatus)
		operators.GET("/inboxes", h.GetInboxes)
		operators.GET("/grace-periods", h.GetGracePeriods)
	}
}

// UpdateStatus sets an operator AVAILABLE or OFFLINE
// PUT /api/operators/:operatorId/status
func (h *OperatorHandler) UpdateStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actorID, tenantID := caller(c)
	st, err := h.operators.UpdateStatus(c.Request.Context(), actorID, c.Param("operatorId"), tenantID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(st, ""))
}

// GET /api/operators/:operatorId/status
func (h *OperatorHandler) GetStatus(c *gin.Context) {
	_, tenantID := caller(c)
	st, err := h.operators.GetStatus(c.Request.Context(), c.Param("operatorId"), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(st, ""))
}

// GET /api/operators/:operatorId/inboxes
func (h *OperatorHandler) GetInboxes(c *gin.Context) {
	_, tenantID := caller(c)
	inboxes, err := h.operators.GetSubscribedInboxes(c.Request.Context(), c.Param("operatorId"), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(inboxes, ""))
}

// GetGracePeriods lists the operator's pending holds, soonest expiry first
// GET /api/operators/:operatorId/grace-periods
func (h *OperatorHandler) GetGracePeriods(c *gin.Context) {
	actorID, tenantID := caller(c)
	holds, err := h.operators.GetGracePeriods(c.Request.Context(), actorID, c.Param("operatorId"), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(holds, ""))
}
