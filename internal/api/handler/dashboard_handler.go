package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/internal/dispatch/routing"
	"github.com/towbridge/dispatch/internal/dispatch/sla"
	"github.com/towbridge/dispatch/internal/dispatch/storage"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Dashboard handles GET /api/v1/dashboard. All derived state is recomputed
// on each read; absent collaborator data degrades to empty sections.
func (h *DispatchHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	jobs, err := h.store.ListJobs(ctx, storage.JobFilter{})
	if err != nil {
		h.respondError(c, err)
		return
	}

	var vendors []domain.Vendor
	if h.vendors != nil {
		if vendors, err = h.vendors.ListVendors(ctx); err != nil {
			vendors = nil
		}
	}

	var tasks []domain.ComplianceTask
	if h.compliance != nil {
		if tasks, err = h.compliance.ListTasks(ctx); err != nil {
			tasks = nil
		}
	}

	c.JSON(http.StatusOK, sla.BuildDashboard(jobs, vendors, tasks, timeNow(), h.thresholds))
}

// RoutingSuggestions handles GET /api/v1/routing/suggestions — advisory
// vendor rankings for every unassigned job.
func (h *DispatchHandler) RoutingSuggestions(c *gin.Context) {
	ctx := c.Request.Context()

	jobs, err := h.store.ListJobs(ctx, storage.JobFilter{Status: domain.StatusUnassigned})
	if err != nil {
		h.respondError(c, err)
		return
	}

	var vendors []domain.Vendor
	if h.vendors != nil {
		if vendors, err = h.vendors.ListVendors(ctx); err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": routing.SuggestAll(jobs, vendors, h.routingTopN),
	})
}
