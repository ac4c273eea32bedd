package handler

import (
	"net/http"
	"strconv"

	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/service"
	"github.com/gin-gonic/gin"
)

// ConversationHandler handles allocation and lifecycle API requests
type ConversationHandler struct {
	allocation    *service.AllocationService
	conversations *service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(allocation *service.AllocationService, conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{allocation: allocation, conversations: conversations}
}

// RegisterRoutes registers conversation and inbox listing routes
func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("/allocate", h.Allocate)
		conversations.GET("/search", h.Search)
		conversations.GET("/:conversationId", h.Get)
		conversations.POST("/:conversationId/claim", h.Claim)
		conversations.POST("/:conversationId/resolve", h.Resolve)

		// Managers only
		conversations.POST("/:conversationId/deallocate", h.Deallocate)
		conversations.POST("/:conversationId/reassign", h.Reassign)
		conversations.POST("/:conversationId/move", h.Move)

		// Orchestrator-backed
		conversations.GET("/:conversationId/history", h.History)
		conversations.GET("/:conversationId/contact", h.Contact)
	}

	r.GET("/inboxes/:inboxId/conversations", h.List)
}

// Allocate hands the caller the next conversation from its inboxes
// POST /api/conversations/allocate
func (h *ConversationHandler) Allocate(c *gin.Context) {
	operatorID, tenantID := caller(c)
	conv, err := h.allocation.AllocateNext(c.Request.Context(), operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if conv == nil {
		c.JSON(http.StatusOK, models.OK(nil, "No conversations available for allocation"))
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// Claim assigns a specific queued conversation to the caller
// POST /api/conversations/:conversationId/claim
func (h *ConversationHandler) Claim(c *gin.Context) {
	operatorID, tenantID := caller(c)
	conv, err := h.allocation.Claim(c.Request.Context(), c.Param("conversationId"), operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// Get returns one conversation
// GET /api/conversations/:conversationId
func (h *ConversationHandler) Get(c *gin.Context) {
	operatorID, tenantID := caller(c)
	conv, err := h.conversations.Get(c.Request.Context(), c.Param("conversationId"), operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// POST /api/conversations/:conversationId/resolve
func (h *ConversationHandler) Resolve(c *gin.Context) {
	operatorID, tenantID := caller(c)
	conv, err := h.conversations.Resolve(c.Request.Context(), c.Param("conversationId"), operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// POST /api/conversations/:conversationId/deallocate
func (h *ConversationHandler) Deallocate(c *gin.Context) {
	operatorID, tenantID := caller(c)
	conv, err := h.conversations.Deallocate(c.Request.Context(), c.Param("conversationId"), operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// POST /api/conversations/:conversationId/reassign
func (h *ConversationHandler) Reassign(c *gin.Context) {
	var req models.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	operatorID, tenantID := caller(c)
	conv, err := h.conversations.Reassign(c.Request.Context(), c.Param("conversationId"), req.TargetOperatorID, operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// POST /api/conversations/:conversationId/move
func (h *ConversationHandler) Move(c *gin.Context) {
	var req models.MoveInboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	operatorID, tenantID := caller(c)
	conv, err := h.conversations.MoveInbox(c.Request.Context(), c.Param("conversationId"), req.TargetInboxID, operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(conv, ""))
}

// List lists the conversations of an inbox
// GET /api/inboxes/:inboxId/conversations?state=&assignedOperatorId=&sort=&limit=&offset=
func (h *ConversationHandler) List(c *gin.Context) {
	var q models.ListConversationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	operatorID, tenantID := caller(c)
	convs, err := h.conversations.List(c.Request.Context(), c.Param("inboxId"), operatorID, tenantID, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(convs, ""))
}

// Search finds conversations by customer phone number
// GET /api/conversations/search?phoneNumber=
func (h *ConversationHandler) Search(c *gin.Context) {
	phone := c.Query("phoneNumber")
	if phone == "" {
		badRequest(c, "phoneNumber is required")
		return
	}
	operatorID, tenantID := caller(c)
	convs, err := h.conversations.Search(c.Request.Context(), phone, operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(convs, ""))
}

// History pages through the conversation's messages
// GET /api/conversations/:conversationId/history?page=&limit=
func (h *ConversationHandler) History(c *gin.Context) {
	page, err := intQuery(c, "page", 1, 1, 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := intQuery(c, "limit", 50, 1, models.MaxListLimit)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	operatorID, tenantID := caller(c)
	history, err := h.conversations.GetHistory(c.Request.Context(), c.Param("conversationId"), operatorID, tenantID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(history, ""))
}

// GET /api/conversations/:conversationId/contact
func (h *ConversationHandler) Contact(c *gin.Context) {
	operatorID, tenantID := caller(c)
	contact, err := h.conversations.GetContact(c.Request.Context(), c.Param("conversationId"), operatorID, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OK(contact, ""))
}

// intQuery parses an optional integer query parameter. max <= 0 means
// unbounded.
func intQuery(c *gin.Context, name string, def, min, max int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || (max > 0 && v > max) {
		return 0, service.NewValidationError("invalid %s %q", name, raw)
	}
	return v, nil
}
