package handlers

import (
	"net/http"

	"example.com/potrack/internal/services"
	"example.com/potrack/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// POHandler handles purchase-order HTTP requests
type POHandler struct {
	poService *services.POService
	tracer    tracing.Tracer
}

// NewPOHandler creates a new purchase-order handler
func NewPOHandler(poService *services.POService, tracer tracing.Tracer) *POHandler {
	return &POHandler{
		poService: poService,
		tracer:    tracer,
	}
}

// actorFields carries the acting user on every write request
type actorFields struct {
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
}

func (f actorFields) actor() services.Actor {
	actor := services.Actor{Name: f.ActorName}
	if id, err := uuid.Parse(f.ActorID); err == nil {
		actor.ID = id
	}
	return actor
}

// UpdateProgressRequest sets one department's progress on an item
type UpdateProgressRequest struct {
	actorFields
	Department string `json:"department" binding:"required"`
	Progress   *int   `json:"progress" binding:"required"`
	Note       string `json:"note"`
}

// UpdateDeliveryRequest records a delivery against an item
type UpdateDeliveryRequest struct {
	actorFields
	DeliveredQuantity *int `json:"delivered_quantity" binding:"required"`
}

// CreateIssueRequest reports an issue against an item
type CreateIssueRequest struct {
	actorFields
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Priority    string  `json:"priority"`
}

// FinanceRequest updates a purchase order's paid or invoiced flag
type FinanceRequest struct {
	actorFields
	Action string `json:"action" binding:"required"`
}

// UrgentRequest toggles a purchase order's urgent flag
type UrgentRequest struct {
	actorFields
	IsUrgent *bool `json:"is_urgent" binding:"required"`
}

// StatusRequest transitions a purchase order to a new status
type StatusRequest struct {
	actorFields
	Status string `json:"status" binding:"required"`
}

// HandleListItems returns the item snapshots of every active purchase order
func (h *POHandler) HandleListItems(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-items")
	defer h.tracer.EndTransaction(txn)

	items, err := h.poService.ListWorkItems(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list work items")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// HandleCreateOrder creates a purchase order with its items
func (h *POHandler) HandleCreateOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-order")
	defer h.tracer.EndTransaction(txn)

	var req struct {
		actorFields
		services.CreatePurchaseOrderInput
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}
	h.tracer.AddAttribute(txn, "po_number", req.PONumber)

	po, err := h.poService.CreatePurchaseOrder(c, &req.CreatePurchaseOrderInput, req.actor())
	if err != nil {
		log.Error().Err(err).Str("po_number", req.PONumber).Msg("Failed to create purchase order")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, po)
}

// HandleUpdateProgress updates one department track on an item
func (h *POHandler) HandleUpdateProgress(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-progress")
	defer h.tracer.EndTransaction(txn)

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	var req UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	track, err := h.poService.UpdateTrackProgress(c, itemID, req.Department, *req.Progress, req.Note, req.actor())
	if err != nil {
		log.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to update track progress")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, track)
}

// HandleUpdateDelivery records a delivered quantity on an item
func (h *POHandler) HandleUpdateDelivery(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-delivery")
	defer h.tracer.EndTransaction(txn)

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	var req UpdateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.poService.SetDeliveredQuantity(c, itemID, *req.DeliveredQuantity, req.actor())
	if err != nil {
		log.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to update delivery")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// HandleCreateIssue reports an issue against an item
func (h *POHandler) HandleCreateIssue(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-issue")
	defer h.tracer.EndTransaction(txn)

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	var req CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.poService.CreateIssue(c, itemID, &services.CreateIssueInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	}, req.actor())
	if err != nil {
		log.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to create issue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// HandleResolveIssue marks an issue resolved
func (h *POHandler) HandleResolveIssue(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-resolve-issue")
	defer h.tracer.EndTransaction(txn)

	issueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue id"})
		return
	}

	var req struct {
		actorFields
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.poService.ResolveIssue(c, issueID, req.actor())
	if err != nil {
		log.Error().Err(err).Str("issue_id", issueID.String()).Msg("Failed to resolve issue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// HandleUpdateFinance updates the paid or invoiced flag of a purchase order
func (h *POHandler) HandleUpdateFinance(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-finance")
	defer h.tracer.EndTransaction(txn)

	poID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchase order id"})
		return
	}

	var req FinanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	po, err := h.poService.SetFinanceStatus(c, poID, req.Action, req.actor())
	if err != nil {
		log.Error().Err(err).Str("po_id", poID.String()).Msg("Failed to update finance status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, po)
}

// HandleUpdateUrgent toggles the urgent flag of a purchase order
func (h *POHandler) HandleUpdateUrgent(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-urgent")
	defer h.tracer.EndTransaction(txn)

	poID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchase order id"})
		return
	}

	var req UrgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	po, err := h.poService.SetUrgent(c, poID, *req.IsUrgent, req.actor())
	if err != nil {
		log.Error().Err(err).Str("po_id", poID.String()).Msg("Failed to update urgent flag")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, po)
}

// HandleUpdateStatus transitions a purchase order to a new status
func (h *POHandler) HandleUpdateStatus(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-status")
	defer h.tracer.EndTransaction(txn)

	poID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchase order id"})
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	po, err := h.poService.ChangeStatus(c, poID, req.Status, req.actor())
	if err != nil {
		log.Error().Err(err).Str("po_id", poID.String()).Msg("Failed to update status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, po)
}

// RegisterRoutes registers the handler's routes
func (h *POHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/items", h.HandleListItems)
		v1.POST("/orders", h.HandleCreateOrder)
		v1.PATCH("/items/:id/progress", h.HandleUpdateProgress)
		v1.PATCH("/items/:id/delivery", h.HandleUpdateDelivery)
		v1.POST("/items/:id/issues", h.HandleCreateIssue)
		v1.POST("/issues/:id/resolve", h.HandleResolveIssue)
		v1.PATCH("/orders/:id/finance", h.HandleUpdateFinance)
		v1.PATCH("/orders/:id/urgent", h.HandleUpdateUrgent)
		v1.PATCH("/orders/:id/status", h.HandleUpdateStatus)
	}
}
