package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/towbridge/dispatch/internal/api/dto"
	"github.com/towbridge/dispatch/internal/dispatch"
	"github.com/towbridge/dispatch/internal/dispatch/sla"
)

// SubmitBid handles POST /api/v1/public/vendor/:token/bids. Re-submission
// by the same vendor updates the existing bid.
func (h *DispatchHandler) SubmitBid(c *gin.Context) {
	var req dto.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	bid, err := h.service.SubmitBid(c.Request.Context(), c.Param("token"), dispatch.BidRequest{
		VendorID:    req.VendorID,
		VendorName:  req.VendorName,
		VendorPhone: req.VendorPhone,
		ETAMinutes:  req.ETAMinutes,
		Price:       req.Price,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bidDTO(bid))
}

// ListCustomerBids handles GET /api/v1/public/customer/:token/bids
func (h *DispatchHandler) ListCustomerBids(c *gin.Context) {
	job, bids, err := h.service.ListBidsByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]dto.BidDTO, len(bids))
	for i := range bids {
		out[i] = bidDTO(&bids[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"job":  publicJobDTO(job),
		"bids": out,
	})
}

// SelectBid handles POST /api/v1/public/customer/:token/select
func (h *DispatchHandler) SelectBid(c *gin.Context) {
	var req dto.SelectBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.service.SelectBidByToken(c.Request.Context(), c.Param("token"), req.BidID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, publicJobDTO(job))
}

// Track handles GET /api/v1/public/track/:token — the guest tracking view,
// including the current SLA assessment.
func (h *DispatchHandler) Track(c *gin.Context) {
	job, err := h.service.TrackByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	assessment := sla.Evaluate(job, timeNow(), h.thresholds)

	c.JSON(http.StatusOK, gin.H{
		"job":        publicJobDTO(job),
		"assessment": assessment,
	})
}

// Rate handles POST /api/v1/public/track/:token/rating
func (h *DispatchHandler) Rate(c *gin.Context) {
	var req dto.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.service.RateByToken(c.Request.Context(), c.Param("token"), req.Stars); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rated": true})
}
