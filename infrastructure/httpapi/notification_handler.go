package httpapi

import (
	"chat-delivery/auth"
	"chat-delivery/domain"
	"chat-delivery/services"
	"net/http"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	*BaseHandler
	notifications services.INotificationService
}

func NewNotificationHandler(base *BaseHandler, notifications services.INotificationService) *NotificationHandler {
	return &NotificationHandler{BaseHandler: base, notifications: notifications}
}

func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PUT("/read-all", h.MarkAllAsRead)
		notifications.PUT("/:id/read", h.MarkAsRead)
		notifications.DELETE("/:id", h.Delete)
		notifications.DELETE("", h.DeleteAll)
	}
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, err := h.notifications.List(auth.UserIDFrom(c), BoolQuery(c, "unreadOnly"),
		h.Page(c, domain.DefaultNotificationLimit))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(auth.UserIDFrom(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	notification, err := h.notifications.MarkAsRead(auth.UserIDFrom(c), id)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	marked, err := h.notifications.MarkAllAsRead(auth.UserIDFrom(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(auth.UserIDFrom(c), id); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) DeleteAll(c *gin.Context) {
	deleted, err := h.notifications.DeleteAll(auth.UserIDFrom(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
