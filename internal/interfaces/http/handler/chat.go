package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"log/slog"

	appChat "github.com/answerdesk/backend/internal/application/chat"
	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/answerdesk/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	pipeline *appChat.Pipeline
	chatRepo domainChat.ChatRepository
	logger   *slog.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(pipeline *appChat.Pipeline, chatRepo domainChat.ChatRepository) *ChatHandler {
	return &ChatHandler{
		pipeline: pipeline,
		chatRepo: chatRepo,
		logger:   log.NewModuleLogger("chat", "handler"),
	}
}

// CreateChatRequest 创建会话请求
type CreateChatRequest struct {
	ChatbotID string `json:"chatbot_id" binding:"required"`
	OrgID     string `json:"org_id" binding:"required"`
}

// CreateChat 创建会话
// POST /api/v1/chats
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	chat := &domainChat.Chat{
		ID:        uuid.NewString(),
		ChatbotID: req.ChatbotID,
		OrgID:     req.OrgID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.chatRepo.CreateChat(chat); err != nil {
		h.logger.Error("Failed to create chat", "error", err)
		response.Error(c, http.StatusInternalServerError, 500, "failed to create chat")
		return
	}

	response.Success(c, chat)
}

// GetMessages 读取会话历史
// GET /api/v1/chats/:chatId/messages
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID := c.Param("chatId")

	if _, err := h.chatRepo.GetChat(chatID); err != nil {
		h.respondError(c, err)
		return
	}

	limit := 100
	messages, err := h.chatRepo.RecentMessages(chatID, limit)
	if err != nil {
		h.logger.Error("Failed to load messages", "chat_id", chatID, "error", err)
		response.Error(c, http.StatusInternalServerError, 500, "failed to load messages")
		return
	}

	response.Success(c, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessage 阻塞式发送消息
// POST /api/v1/chats/:chatId/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req appChat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}
	req.ChatID = c.Param("chatId")

	turn, err := h.pipeline.Respond(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, turn)
}

// SendMessageStream 流式发送消息
// POST /api/v1/chats/:chatId/messages/stream
// 事件以 SSE 下发：message 事件携带增量内容，终止事件带来源和用量，
// 生成失败表现为单个 error 事件
func (h *ChatHandler) SendMessageStream(c *gin.Context) {
	var req appChat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}
	req.ChatID = c.Param("chatId")

	events, err := h.pipeline.RespondStream(c.Request.Context(), &req)
	if err != nil {
		// 生成开始前的失败仍然走普通 JSON 响应
		h.respondError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		if event.Err != nil {
			c.SSEvent("error", gin.H{"error": event.Err.Error()})
			return false
		}
		c.SSEvent("message", event)
		return !event.IsComplete
	})
}

// respondError 领域错误到 HTTP 状态码的映射
func (h *ChatHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainChat.ErrChatNotFound),
		errors.Is(err, domainChat.ErrChatbotNotFound):
		response.Error(c, http.StatusNotFound, 404, err.Error())
	case errors.Is(err, domainChat.ErrInvalidConfig):
		response.Error(c, http.StatusBadRequest, 400, err.Error())
	case errors.Is(err, domainChat.ErrGenerationTimeout):
		response.Error(c, http.StatusGatewayTimeout, 504, err.Error())
	default:
		h.logger.Error("Chat request failed", "error", err)
		response.Error(c, http.StatusInternalServerError, 500, err.Error())
	}
}
