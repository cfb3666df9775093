package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/dto"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// ChatHandler serves project chat.
type ChatHandler struct {
	chatService *services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService *services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

// ListMessages handles GET /api/projects/:id/messages
func (h *ChatHandler) ListMessages(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	messages, err := h.chatService.ListMessages(actor, projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": dto.ToMessageDTOs(messages)})
}

// PostMessage handles POST /api/projects/:id/messages
func (h *ChatHandler) PostMessage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	message, err := h.chatService.PostMessage(c.Request.Context(), actor, projectID, req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToMessageDTO(*message))
}

// Stream handles GET /api/projects/:id/messages/stream
func (h *ChatHandler) Stream(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	sub, err := h.chatService.Subscribe(c.Request.Context(), actor, projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer func() { _ = sub.Close() }()

	load := func() (any, error) {
		messages, err := h.chatService.ListMessages(actor, projectID)
		if err != nil {
			return nil, err
		}
		return dto.ToMessageDTOs(messages), nil
	}
	streamEvents(c, h.logger, "messages", load, sub.Messages(), func([]byte) (any, error) {
		return load()
	})
}
