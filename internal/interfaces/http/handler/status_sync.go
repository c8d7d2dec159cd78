package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elyphant/backend/internal/infrastructure/scheduler"
	"github.com/elyphant/backend/internal/interfaces/http/dto"
)

const defaultJobHistoryLimit = 50

// StatusSyncHistory exposes the recent jobs of the status sync worker pool
type StatusSyncHistory interface {
	GetJobHistory(limit int) []*scheduler.StatusSyncJob
	GetJobHistoryByOrder(orderID uuid.UUID, limit int) []*scheduler.StatusSyncJob
	QueuedCount() int
}

// StatusSyncHandler serves the status sync job history
type StatusSyncHandler struct {
	BaseHandler
	history StatusSyncHistory
}

// NewStatusSyncHandler creates a new StatusSyncHandler
func NewStatusSyncHandler(history StatusSyncHistory) *StatusSyncHandler {
	return &StatusSyncHandler{history: history}
}

// StatusSyncJobsResponse lists recent status sync jobs
type StatusSyncJobsResponse struct {
	Queued int                        `json:"queued"`
	Jobs   []*scheduler.StatusSyncJob `json:"jobs"`
}

// ListJobs godoc
// @Summary      List status sync jobs
// @Description  Recent Zinc status check jobs, newest first, optionally for one order
// @Tags         functions
// @Produce      json
// @Param        orderId  query     string  false  "Order ID"
// @Param        limit    query     int     false  "Maximum jobs returned (default 50)"
// @Success      200 {object} dto.Response{data=StatusSyncJobsResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Security     BearerAuth
// @Router       /functions/v1/status-sync-jobs [get]
func (h *StatusSyncHandler) ListJobs(c *gin.Context) {
	var q dto.StatusSyncJobsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultJobHistoryLimit
	}

	var jobs []*scheduler.StatusSyncJob
	if q.OrderID != "" {
		orderID, err := uuid.Parse(q.OrderID)
		if err != nil {
			h.BadRequest(c, "Invalid orderId format")
			return
		}
		jobs = h.history.GetJobHistoryByOrder(orderID, limit)
	} else {
		jobs = h.history.GetJobHistory(limit)
	}
	h.Success(c, StatusSyncJobsResponse{Queued: h.history.QueuedCount(), Jobs: jobs})
}
