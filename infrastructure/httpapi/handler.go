package httpapi

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrorBody is what every failing endpoint answers.
type ErrorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// BaseHandler carries the helpers shared by every route group.
type BaseHandler struct {
	log *slog.Logger
}

func NewBaseHandler(log *slog.Logger) *BaseHandler {
	return &BaseHandler{log: log}
}

// HandleServiceError maps err to its status and wire code.
// Only unclassified failures are logged, the others are the caller's fault.
func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	status := errors.MapToHTTPStatus(err)
	code := errors.ToCode(err)
	if code == errors.CodeInternal || code == errors.CodeStorage {
		h.log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Code: code, Message: err.Error()})
}

// BindJSON decodes the body into out, answering 400 on failure.
// Struct binding tags are checked on the way in.
func (h *BaseHandler) BindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		h.HandleServiceError(c, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
		return false
	}
	return true
}

func (h *BaseHandler) ConversationID(c *gin.Context) (domain.ConversationID, bool) {
	id := domain.ConversationID(c.Param("id"))
	if !id.Valid() {
		h.HandleServiceError(c, fmt.Errorf("conversation id %q: %w", id, errors.ErrInvalidPayload))
		return "", false
	}
	return id, true
}

func (h *BaseHandler) UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.HandleServiceError(c, fmt.Errorf("%s: %w", name, errors.ErrInvalidPayload))
		return uuid.Nil, false
	}
	return id, true
}

// Page reads ?page and ?limit, clamped by domain.NewPage.
func (h *BaseHandler) Page(c *gin.Context, defaultLimit int) domain.Page {
	number, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return domain.NewPage(number, limit, defaultLimit)
}

// BoolQuery treats anything but a parsable true as false.
func BoolQuery(c *gin.Context, name string) bool {
	value, err := strconv.ParseBool(c.Query(name))
	return err == nil && value
}
