package handler

import (
	"errors"
	"net/http"
	"time"

	"log/slog"

	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/answerdesk/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// ChatbotHandler 机器人配置处理器
type ChatbotHandler struct {
	repo   domainChat.ChatbotRepository
	logger *slog.Logger
}

// NewChatbotHandler 创建机器人配置处理器
func NewChatbotHandler(repo domainChat.ChatbotRepository) *ChatbotHandler {
	return &ChatbotHandler{
		repo:   repo,
		logger: log.NewModuleLogger("chatbot", "handler"),
	}
}

// GetChatbot 读取机器人配置
// GET /api/v1/chatbots/:chatbotId
func (h *ChatbotHandler) GetChatbot(c *gin.Context) {
	bot, err := h.repo.GetChatbot(c.Param("chatbotId"))
	if err != nil {
		if errors.Is(err, domainChat.ErrChatbotNotFound) {
			response.Error(c, http.StatusNotFound, 404, err.Error())
			return
		}
		h.logger.Error("Failed to load chatbot", "error", err)
		response.Error(c, http.StatusInternalServerError, 500, "failed to load chatbot")
		return
	}

	response.Success(c, bot)
}

// SaveChatbotRequest 保存机器人配置请求
type SaveChatbotRequest struct {
	OrgID                string  `json:"org_id" binding:"required"`
	Name                 string  `json:"name" binding:"required"`
	SystemPrompt         string  `json:"system_prompt"`
	Temperature          float32 `json:"temperature"`
	MaxTokens            int     `json:"max_tokens"`
	MaxSources           int     `json:"max_sources"`
	IncludeOrgDocs       bool    `json:"include_org_docs"`
	IncludeContextBlocks bool    `json:"include_context_blocks"`
	CoreRules            string  `json:"core_rules"`
}

// SaveChatbot 保存机器人配置（upsert）
// PUT /api/v1/chatbots/:chatbotId
func (h *ChatbotHandler) SaveChatbot(c *gin.Context) {
	var req SaveChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	bot := &domainChat.Chatbot{
		ID:                   c.Param("chatbotId"),
		OrgID:                req.OrgID,
		Name:                 req.Name,
		SystemPrompt:         req.SystemPrompt,
		Temperature:          req.Temperature,
		MaxTokens:            req.MaxTokens,
		MaxSources:           req.MaxSources,
		IncludeOrgDocs:       req.IncludeOrgDocs,
		IncludeContextBlocks: req.IncludeContextBlocks,
		CoreRules:            req.CoreRules,
		UpdatedAt:            time.Now().UnixMilli(),
	}

	// 存储的默认值也要满足生成配置的约束
	if _, err := domainChat.ResolveGenerationConfig(bot, nil); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	if err := h.repo.SaveChatbot(bot); err != nil {
		h.logger.Error("Failed to save chatbot", "error", err)
		response.Error(c, http.StatusInternalServerError, 500, "failed to save chatbot")
		return
	}

	response.Success(c, bot)
}
