package wire

import (
	"database/sql"

	"log/slog"

	"github.com/answerdesk/backend/internal/infrastructure/config"
	applog "github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/answerdesk/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	configMgr  *config.Manager
	db         *sql.DB
	logger     *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	configMgr *config.Manager,
	db *sql.DB,
) *App {
	return &App{
		HTTPServer: httpServer,
		MCPServer:  mcpServer,
		configMgr:  configMgr,
		db:         db,
		logger:     applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting AnswerDesk backend application")

	// 启动配置热更新监听
	if err := a.configMgr.Watch(); err != nil {
		a.logger.Error("Failed to watch config file",
			"error", err,
		)
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	a.logger.Info("AnswerDesk backend application started successfully")

	// MCP 服务器通过 HTTP Handler 提供服务，不需要单独启动
	// 已在 HTTP 服务器中注册 /mcp/sse 端点

	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping AnswerDesk backend application")

	// 先停配置监听，避免关停过程中触发重载
	a.configMgr.Stop()

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		return err
	}

	// 关闭数据库连接
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection",
				"error", err,
			)
			return err
		}
	}

	a.logger.Info("AnswerDesk backend application stopped successfully")

	return nil
}
