package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/service"
	"github.com/libren/support-chat/pkg/log"
	"github.com/libren/support-chat/pkg/response"
)

// HTTPHandler serves the REST surface: chat lifecycle for patrons and
// the claim queue for librarians. Message delivery stays on the
// WebSocket; REST only covers history and state transitions.
type HTTPHandler struct {
	service service.ChatService
}

func NewHTTPHandler(svc service.ChatService) *HTTPHandler {
	return &HTTPHandler{service: svc}
}

// RegisterRoutes mounts all REST endpoints on the router group.
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chats", h.CreateChat)
	r.GET("/chats", h.ListMyChats)
	r.GET("/chats/:id/messages", h.History)

	lib := r.Group("/librarian", RequireLibrarian())
	lib.GET("/chats", h.ListAssigned)
	lib.GET("/chats/unassigned", h.ListUnassigned)
	lib.POST("/chats/:id/assign", h.Claim)
	lib.POST("/chats/:id/close", h.CloseChat)
}

type createChatRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *HTTPHandler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "title is required")
		return
	}

	chat, err := h.service.CreateChat(c.Request.Context(), identityFrom(c), req.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, chat)
}

func (h *HTTPHandler) ListMyChats(c *gin.Context) {
	chats, err := h.service.PatronChats(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, chats)
}

func (h *HTTPHandler) History(c *gin.Context) {
	msgs, err := h.service.History(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, msgs)
}

func (h *HTTPHandler) ListAssigned(c *gin.Context) {
	chats, err := h.service.AssignedChats(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, chats)
}

func (h *HTTPHandler) ListUnassigned(c *gin.Context) {
	chats, err := h.service.UnassignedChats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, chats)
}

func (h *HTTPHandler) Claim(c *gin.Context) {
	chat, err := h.service.Claim(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, chat)
}

func (h *HTTPHandler) CloseChat(c *gin.Context) {
	chat, err := h.service.CloseChat(c.Request.Context(), c.Param("id"), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, chat)
}

// respondError maps domain errors onto HTTP statuses. Conflicts keep
// their domain code so clients can distinguish a lost claim race from
// a close on a non-active chat.
func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrChatNotFound):
		response.NotFound(c, "chat not found")
	case errors.Is(err, domain.ErrAlreadyAssigned):
		response.Conflict(c, domain.ErrCodeAlreadyAssigned, "chat is already assigned")
	case errors.Is(err, domain.ErrNotActive):
		response.Conflict(c, domain.ErrCodeNotActive, "chat is not active")
	case errors.Is(err, domain.ErrChatClosed):
		response.Conflict(c, domain.ErrCodeChatClosed, "chat is closed")
	case errors.Is(err, domain.ErrEmptyContent):
		response.BadRequest(c, "content must not be empty")
	case errors.Is(err, domain.ErrNotParticipant):
		response.Forbidden(c, "not a participant of this chat")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldMethod, c.Request.Method).Str(log.FieldPath, c.FullPath()).Msg("request failed")
		response.InternalError(c, "internal error")
	}
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
