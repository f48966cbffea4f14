package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/answerdesk/backend/internal/infrastructure/config"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/answerdesk/backend/internal/interfaces/http/handler"
	"github.com/answerdesk/backend/internal/interfaces/http/middleware"
	"github.com/answerdesk/backend/internal/interfaces/mcp"
	"github.com/gin-gonic/gin"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverCfg *config.ServerConfig,
	chatHandler *handler.ChatHandler,
	chatbotHandler *handler.ChatbotHandler,
	chatWSHandler *handler.ChatWSHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.RequestID())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 会话相关路由
		api.POST("/chats", chatHandler.CreateChat)
		api.GET("/chats/:chatId/messages", chatHandler.GetMessages)
		api.POST("/chats/:chatId/messages", chatHandler.SendMessage)
		api.POST("/chats/:chatId/messages/stream", chatHandler.SendMessageStream)
		api.GET("/chats/:chatId/ws", chatWSHandler.Stream)

		// 机器人配置路由
		api.GET("/chatbots/:chatbotId", chatbotHandler.GetChatbot)
		api.PUT("/chatbots/:chatbotId", chatbotHandler.SaveChatbot)
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: serverCfg.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
