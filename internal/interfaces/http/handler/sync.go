package handler

import (
	"github.com/gin-gonic/gin"

	appintegration "github.com/orderhub/backend/internal/application/integration"
	"github.com/orderhub/backend/internal/infrastructure/scheduler"
	"github.com/orderhub/backend/internal/interfaces/http/dto"
)

const (
	defaultJobHistory = 20
	maxJobHistory     = 100
)

// SubmitReconcileJobRequest queues an asynchronous reconciliation
type SubmitReconcileJobRequest struct {
	Kind string `json:"kind" binding:"omitempty,oneof=health gaps"`
	Days int    `json:"days" binding:"omitempty,min=1"`
}

// JobHistoryQuery limits the job history listing
type JobHistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// SyncHandler serves the read-only sync reconciliation endpoints
type SyncHandler struct {
	BaseHandler
	reconcile *appintegration.ReconcileService
	jobs      *scheduler.ReconcileScheduler
}

// NewSyncHandler creates a new SyncHandler. jobs may be nil when the
// scheduler is disabled.
func NewSyncHandler(reconcile *appintegration.ReconcileService, jobs *scheduler.ReconcileScheduler) *SyncHandler {
	return &SyncHandler{reconcile: reconcile, jobs: jobs}
}

// Health godoc
// @Summary      Per-platform sync freshness and the overall verdict
// @Tags         sync
// @Produce      json
// @Router       /sync/health [get]
func (h *SyncHandler) Health(c *gin.Context) {
	report, err := h.reconcile.ComputeHealth(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Gaps godoc
// @Summary      Days with missing or anomalously low order volume
// @Tags         sync
// @Produce      json
// @Param        days query int false "Trailing days to scan" default(7)
// @Router       /sync/gaps [get]
func (h *SyncHandler) Gaps(c *gin.Context) {
	var q appintegration.GapQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	report, err := h.reconcile.FindGaps(c.Request.Context(), q.Days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// SubmitJob godoc
// @Summary      Queue a reconciliation job
// @Description  Answers 202 with the pending job. Poll GET /sync/reconcile-jobs/{id} for the result.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Router       /sync/reconcile-jobs [post]
func (h *SyncHandler) SubmitJob(c *gin.Context) {
	if !h.jobsEnabled(c) {
		return
	}
	var req SubmitReconcileJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	kind, err := scheduler.ParseJobKind(req.Kind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	job, err := h.jobs.Submit(c.Request.Context(), kind, req.Days, scheduler.JobTriggerManual)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Location", c.FullPath()+"/"+job.ID.String())
	h.Accepted(c, job)
}

// GetJob godoc
// @Summary      Poll a reconciliation job
// @Tags         sync
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Router       /sync/reconcile-jobs/{id} [get]
func (h *SyncHandler) GetJob(c *gin.Context) {
	if !h.jobsEnabled(c) {
		return
	}
	id, ok := h.parseIDParam(c, "id", "job")
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// ListJobs godoc
// @Summary      Recent reconciliation jobs, newest first
// @Tags         sync
// @Produce      json
// @Param        limit query int false "Max jobs" default(20)
// @Router       /sync/reconcile-jobs [get]
func (h *SyncHandler) ListJobs(c *gin.Context) {
	if !h.jobsEnabled(c) {
		return
	}
	var q JobHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultJobHistory
	}
	jobs, err := h.jobs.History(c.Request.Context(), min(limit, maxJobHistory))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, jobs)
}

func (h *SyncHandler) jobsEnabled(c *gin.Context) bool {
	if h.jobs != nil {
		return true
	}
	h.Error(c, dto.KindServiceUnavailable, "reconcile scheduler is disabled")
	return false
}
