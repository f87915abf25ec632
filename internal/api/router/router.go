package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/towbridge/dispatch/internal/api/handler"
	"github.com/towbridge/dispatch/internal/obs"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(obs.GinMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "dispatch-api",
		})
	})

	r.GET("/metrics", obs.Handler())

	h := handler.NewDispatchHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", h.CreateJob)
			jobs.GET("", h.ListJobs)
			jobs.GET("/:job_id", h.GetJob)
			jobs.PATCH("/:job_id/status", h.UpdateStatus)
			jobs.POST("/:job_id/complete", h.ReportCompletion)
			jobs.GET("/:job_id/bids", h.ListJobBids)
			jobs.POST("/:job_id/select", h.SelectBidAdmin)
			jobs.POST("/:job_id/tokens/:kind/revoke", h.RevokeToken)
		}

		// Tokenized public surfaces; the token itself is the credential.
		public := v1.Group("/public")
		{
			public.POST("/vendor/:token/bids", h.SubmitBid)
			public.GET("/customer/:token/bids", h.ListCustomerBids)
			public.POST("/customer/:token/select", h.SelectBid)
			public.GET("/track/:token", h.Track)
			public.POST("/track/:token/rating", h.Rate)
		}

		v1.GET("/dashboard", h.Dashboard)
		v1.GET("/routing/suggestions", h.RoutingSuggestions)

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.ListNotifications)
			notifications.POST("/:id/read", h.MarkNotificationRead)
			notifications.POST("/read-all", h.MarkAllNotificationsRead)
			notifications.DELETE("", h.ClearNotifications)
		}
	}

	return r
}
