package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orderhub/backend/internal/application/fulfillment"
)

// OrderHandler serves order queries, creation, ingestion and status transitions
type OrderHandler struct {
	BaseHandler
	orders *fulfillment.OrderService
	status *fulfillment.StatusService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders *fulfillment.OrderService, status *fulfillment.StatusService) *OrderHandler {
	return &OrderHandler{orders: orders, status: status}
}

// List godoc
// @Summary      List orders
// @Tags         orders
// @Produce      json
// @Param        platform query string false "Sales channel"
// @Param        status query string false "Order status"
// @Param        search query string false "External order id or recipient"
// @Param        date_from query string false "YYYY-MM-DD"
// @Param        date_to query string false "YYYY-MM-DD"
// @Param        batch_id query string false "Batch ID" format(uuid)
// @Param        page query int false "Page" default(1)
// @Param        per_page query int false "Page size" default(20)
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var filter fulfillment.OrderListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	if raw := c.Query("batch_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "invalid batch id")
			return
		}
		filter.BatchID = &id
	}

	orders, total, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, perPage := max(filter.Page, 1), filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	h.SuccessWithMeta(c, OrderListData[fulfillment.OrderResponse]{Orders: orders, Total: total}, total, page, perPage)
}

// GetByID godoc
// @Summary      Get order with status history
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetByID(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id", "order")
	if !ok {
		return
	}
	order, err := h.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// Create godoc
// @Summary      Create an order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Router       /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req fulfillment.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	order, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// Ingest godoc
// @Summary      Upsert a page of platform order rows
// @Description  Rows are keyed by (channel, external_order_id). Each row succeeds or fails on its own.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Router       /orders/ingest [post]
func (h *OrderHandler) Ingest(c *gin.Context) {
	var req fulfillment.IngestOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.orders.Ingest(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Transition godoc
// @Summary      Move one order to a new status
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Router       /orders/{id}/transition [post]
func (h *OrderHandler) Transition(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id", "order")
	if !ok {
		return
	}
	var req fulfillment.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = c.GetHeader("X-Actor-ID")
	}
	order, err := h.status.Transition(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// BulkTransition godoc
// @Summary      Move several orders to one status
// @Description  Always answers 200 with per-order outcomes in request order.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Router       /orders/transition [post]
func (h *OrderHandler) BulkTransition(c *gin.Context) {
	var req fulfillment.BulkTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = c.GetHeader("X-Actor-ID")
	}
	result, err := h.status.BulkTransition(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
