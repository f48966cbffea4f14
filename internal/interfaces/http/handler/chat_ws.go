package handler

import (
	"context"
	"net/http"

	"log/slog"

	appChat "github.com/answerdesk/backend/internal/application/chat"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatWSHandler WebSocket 流式聊天处理器
// SSE 之外的另一种流式传输：客户端每发送一条 TurnRequest，
// 服务端回放一个完整的事件序列，连接可复用于多轮
type ChatWSHandler struct {
	pipeline *appChat.Pipeline
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewChatWSHandler 创建 WebSocket 聊天处理器
func NewChatWSHandler(pipeline *appChat.Pipeline) *ChatWSHandler {
	return &ChatWSHandler{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 嵌入式聊天挂件跨域访问
			},
		},
		logger: log.NewModuleLogger("chat", "ws_handler"),
	}
}

// wsError WebSocket 错误帧
type wsError struct {
	Error string `json:"error"`
}

// Stream 处理 WebSocket 连接
// GET /api/v1/chats/:chatId/ws
func (h *ChatWSHandler) Stream(c *gin.Context) {
	chatID := c.Param("chatId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req appChat.TurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket read failed", "chat_id", chatID, "error", err)
			}
			return
		}
		req.ChatID = chatID

		if !h.streamTurn(c.Request.Context(), conn, &req) {
			return
		}
	}
}

// streamTurn 执行一轮流式生成并回放事件，连接不可用时返回 false
func (h *ChatWSHandler) streamTurn(ctx context.Context, conn *websocket.Conn, req *appChat.TurnRequest) bool {
	// 单轮取消与连接生命周期解耦
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := h.pipeline.RespondStream(turnCtx, req)
	if err != nil {
		return conn.WriteJSON(wsError{Error: err.Error()}) == nil
	}

	for event := range events {
		if event.Err != nil {
			if conn.WriteJSON(wsError{Error: event.Err.Error()}) != nil {
				return false
			}
			continue
		}
		if conn.WriteJSON(event) != nil {
			// 写失败视为消费方断开，取消生成并丢弃剩余事件
			cancel()
			for range events {
			}
			return false
		}
	}
	return true
}
