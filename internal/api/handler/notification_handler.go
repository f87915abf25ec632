package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/towbridge/dispatch/internal/notify"
)

// recipient derives the notification partition from the identity supplied
// by the auth collaborator. This core trusts the identity it is given.
func recipient(c *gin.Context) (notify.Recipient, bool) {
	role := c.GetHeader("X-Role")
	id := c.GetHeader("X-Actor-Id")
	if role == "" || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Role and X-Actor-Id headers are required"})
		return notify.Recipient{}, false
	}
	return notify.Recipient{Role: role, ID: id}, true
}

// ListNotifications handles GET /api/v1/notifications
func (h *DispatchHandler) ListNotifications(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}

	items, err := h.notify.List(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []notify.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read
func (h *DispatchHandler) MarkNotificationRead(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}

	if err := h.notify.MarkRead(c.Request.Context(), r, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}

// MarkAllNotificationsRead handles POST /api/v1/notifications/read-all
func (h *DispatchHandler) MarkAllNotificationsRead(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}

	if err := h.notify.MarkAllRead(c.Request.Context(), r); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}

// ClearNotifications handles DELETE /api/v1/notifications
func (h *DispatchHandler) ClearNotifications(c *gin.Context) {
	r, ok := recipient(c)
	if !ok {
		return
	}

	if err := h.notify.ClearAll(c.Request.Context(), r); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
