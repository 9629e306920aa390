package httpapi

import (
	"chat-delivery/auth"
	"chat-delivery/domain"
	"chat-delivery/services"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultSearchLimit = 20

type openDirectRequest struct {
	ParticipantID domain.UserID `json:"participantId" binding:"required"`
}

type createGroupRequest struct {
	Participants []domain.UserID `json:"participants" binding:"required,min=1,dive,required"`
}

type sendMessageRequest struct {
	Text string                 `json:"text"`
	File *domain.FileDescriptor `json:"file"`
}

type ConversationHandler struct {
	*BaseHandler
	conversations services.IConversationService
}

func NewConversationHandler(base *BaseHandler, conversations services.IConversationService) *ConversationHandler {
	return &ConversationHandler{BaseHandler: base, conversations: conversations}
}

func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("/direct", h.OpenDirect)
		conversations.POST("/group", h.CreateGroup)
		conversations.GET("", h.List)
		conversations.GET("/:id", h.Get)
		conversations.GET("/:id/messages", h.Messages)
		conversations.POST("/:id/messages", h.Send)
		conversations.PUT("/:id/read", h.MarkRead)
		conversations.GET("/:id/search", h.Search)
	}

	messages := r.Group("/messages")
	{
		messages.GET("/unread-count", h.UnreadCount)
		messages.DELETE("/:id", h.Delete)
	}
}

func (h *ConversationHandler) OpenDirect(c *gin.Context) {
	var req openDirectRequest
	if !h.BindJSON(c, &req) {
		return
	}
	conversation, created, err := h.conversations.OpenDirect(auth.UserIDFrom(c), req.ParticipantID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conversation)
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if !h.BindJSON(c, &req) {
		return
	}
	conversation, err := h.conversations.CreateGroup(auth.UserIDFrom(c), req.Participants)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationHandler) List(c *gin.Context) {
	conversations, pagination, err := h.conversations.List(auth.UserIDFrom(c), h.Page(c, domain.DefaultConversationLimit))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations, "pagination": pagination})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conversationID, ok := h.ConversationID(c)
	if !ok {
		return
	}
	conversation, err := h.conversations.Get(auth.UserIDFrom(c), conversationID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	conversationID, ok := h.ConversationID(c)
	if !ok {
		return
	}
	messages, pagination, err := h.conversations.Messages(auth.UserIDFrom(c), conversationID,
		h.Page(c, domain.DefaultMessageLimit))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "pagination": pagination})
}

func (h *ConversationHandler) Send(c *gin.Context) {
	conversationID, ok := h.ConversationID(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !h.BindJSON(c, &req) {
		return
	}
	message, err := h.conversations.Send(c.Request.Context(), auth.UserIDFrom(c), conversationID, req.Text, req.File)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := h.ConversationID(c)
	if !ok {
		return
	}
	result, err := h.conversations.MarkRead(c.Request.Context(), auth.UserIDFrom(c), conversationID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ConversationHandler) Search(c *gin.Context) {
	conversationID, ok := h.ConversationID(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 || limit > domain.MaxPageLimit {
		limit = defaultSearchLimit
	}
	result, err := h.conversations.Search(c.Request.Context(), auth.UserIDFrom(c), conversationID, c.Query("q"), limit)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	messageID, ok := h.UUIDParam(c, "id")
	if !ok {
		return
	}
	message, err := h.conversations.Delete(c.Request.Context(), auth.UserIDFrom(c), messageID, BoolQuery(c, "forEveryone"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	unread, err := h.conversations.UnreadCount(auth.UserIDFrom(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, unread)
}
