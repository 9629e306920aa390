package httpapi

import (
	"chat-delivery/domain"
	"chat-delivery/services"
	"net/http"

	"github.com/gin-gonic/gin"
)

// InternalHandler serves the calls made by the CRUD layer when users act on
// posts and comments.
type InternalHandler struct {
	*BaseHandler
	notifications services.INotificationService
}

func NewInternalHandler(base *BaseHandler, notifications services.INotificationService) *InternalHandler {
	return &InternalHandler{BaseHandler: base, notifications: notifications}
}

func (h *InternalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/interactions", h.Trigger)
	r.DELETE("/posts/:id/notifications", h.DeleteByPost)
	r.DELETE("/comments/:id/notifications", h.DeleteByComment)
}

// Trigger answers 201 with the notification, or 204 when the actor is the
// recipient and nothing was created.
func (h *InternalHandler) Trigger(c *gin.Context) {
	var interaction domain.Interaction
	if !h.BindJSON(c, &interaction) {
		return
	}
	notification, created, err := h.notifications.Trigger(c.Request.Context(), interaction)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	if !created {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, notification)
}

func (h *InternalHandler) DeleteByPost(c *gin.Context) {
	deleted, err := h.notifications.DeleteByPost(c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *InternalHandler) DeleteByComment(c *gin.Context) {
	deleted, err := h.notifications.DeleteByComment(c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
