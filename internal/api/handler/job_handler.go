package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/towbridge/dispatch/internal/api/dto"
	"github.com/towbridge/dispatch/internal/dispatch"
	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/internal/dispatch/storage"
)

// CreateJob handles POST /api/v1/jobs
func (h *DispatchHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), dispatch.IntakeRequest{
		ServiceType:   req.ServiceType,
		Urgency:       req.Urgency,
		PickupAddress: req.PickupAddress,
		PickupLat:     req.PickupLat,
		PickupLng:     req.PickupLng,
		DropoffAddr:   req.DropoffAddr,
		DropoffLat:    req.DropoffLat,
		DropoffLng:    req.DropoffLng,
		BidMode:       req.BidMode,
		QuotedPrice:   req.QuotedPrice,
	})
	if err != nil {
		h.logger.Error("Failed to create job", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, jobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *DispatchHandler) GetJob(c *gin.Context) {
	job, err := h.service.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobDTO(job))
}

// ListJobs handles GET /api/v1/jobs with filtering and keyset pagination.
func (h *DispatchHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		Urgency:  req.Urgency,
		VendorID: req.VendorID,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	out := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		out[i] = jobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor, err = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       out,
		NextCursor: nextCursor,
	})
}

// UpdateStatus handles PATCH /api/v1/jobs/:job_id/status. Completed is not
// reachable here; that requires the completion submission.
func (h *DispatchHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.service.AdvanceStatus(c.Request.Context(), c.Param("job_id"), req.Status, req.Version)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobDTO(job))
}

// ReportCompletion handles POST /api/v1/jobs/:job_id/complete
func (h *DispatchHandler) ReportCompletion(c *gin.Context) {
	var req dto.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.service.ReportCompletion(c.Request.Context(), c.Param("job_id"), dispatch.CompletionRequest{
		Amount:  req.Amount,
		Method:  req.Method,
		Note:    req.Note,
		Version: req.Version,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobDTO(job))
}

// RevokeToken handles POST /api/v1/jobs/:job_id/tokens/:kind/revoke
func (h *DispatchHandler) RevokeToken(c *gin.Context) {
	scope := domain.TokenScope(c.Param("kind"))
	switch scope {
	case domain.TokenScopeCustomer, domain.TokenScopeVendor, domain.TokenScopeGuest:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown token kind"})
		return
	}

	if err := h.service.RevokeToken(c.Request.Context(), c.Param("job_id"), scope); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": string(scope)})
}

// ListJobBids handles GET /api/v1/jobs/:job_id/bids (admin view).
func (h *DispatchHandler) ListJobBids(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := h.service.GetJob(c.Request.Context(), jobID); err != nil {
		h.respondError(c, err)
		return
	}

	bids, err := h.store.ListBids(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]dto.BidDTO, len(bids))
	for i := range bids {
		out[i] = bidDTO(&bids[i])
	}
	c.JSON(http.StatusOK, gin.H{"bids": out})
}

// SelectBidAdmin handles POST /api/v1/jobs/:job_id/select (dispatcher
// selection on the customer's behalf).
func (h *DispatchHandler) SelectBidAdmin(c *gin.Context) {
	var req dto.SelectBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.service.SelectBid(c.Request.Context(), c.Param("job_id"), req.BidID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobDTO(job))
}
