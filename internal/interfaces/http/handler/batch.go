package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/orderhub/backend/internal/application/fulfillment"
)

// BatchHandler serves shipping batch endpoints
type BatchHandler struct {
	BaseHandler
	batches *fulfillment.BatchService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batches *fulfillment.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// List godoc
// @Summary      List batches, newest first
// @Tags         batches
// @Produce      json
// @Param        platform query string false "Sales channel"
// @Param        status query string false "Batch status"
// @Router       /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	var filter fulfillment.BatchListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	batches, total, err := h.batches.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	h.SuccessWithMeta(c, batches, total, max(filter.Page, 1), perPage)
}

// PendingCount godoc
// @Summary      Count orders eligible for the next batch
// @Tags         batches
// @Produce      json
// @Param        platform query string false "Sales channel"
// @Router       /batches/pending-count [get]
func (h *BatchHandler) PendingCount(c *gin.Context) {
	count, err := h.batches.PendingCount(c.Request.Context(), c.Query("platform"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: count})
}

// Create godoc
// @Summary      Create a batch from the pending pool
// @Description  422 NO_ELIGIBLE_ORDERS when the pool is empty, 409 when another batch is being created for the same scope.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Router       /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req fulfillment.CreateBatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	batch, err := h.batches.CreateBatch(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, batch)
}

// GetByID godoc
// @Summary      Get batch with member orders
// @Tags         batches
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Router       /batches/{id} [get]
func (h *BatchHandler) GetByID(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id", "batch")
	if !ok {
		return
	}
	batch, err := h.batches.GetDetail(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Recompute godoc
// @Summary      Recompute batch progress from member orders
// @Tags         batches
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Router       /batches/{id}/recompute [post]
func (h *BatchHandler) Recompute(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id", "batch")
	if !ok {
		return
	}
	batch, err := h.batches.RecomputeProgress(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}

// Cancel godoc
// @Summary      Cancel a batch and release its orders
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Router       /batches/{id}/cancel [post]
func (h *BatchHandler) Cancel(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id", "batch")
	if !ok {
		return
	}
	var req fulfillment.CancelBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	batch, err := h.batches.CancelBatch(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batch)
}
