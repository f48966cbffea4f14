package log

import (
	"context"
	"log/slog"
)

// 上下文键定义
const (
	// RequestContextID HTTP 请求 ID
	RequestContextID = "request_id"

	// ChatContextID 会话 ID
	ChatContextID = "chat_id"

	// ChatbotContextID 机器人 ID
	ChatbotContextID = "chatbot_id"

	// OrgContextID 组织 ID
	OrgContextID = "org_id"
)

// WithRequestID 在上下文中添加请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestContextID, requestID)
}

// WithChatID 在上下文中添加会话 ID
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ChatContextID, chatID)
}

// WithChatbotID 在上下文中添加机器人 ID
func WithChatbotID(ctx context.Context, chatbotID string) context.Context {
	return context.WithValue(ctx, ChatbotContextID, chatbotID)
}

// WithOrgID 在上下文中添加组织 ID
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, OrgContextID, orgID)
}

// LogCtxFromContext 从上下文中提取日志字段
func LogCtxFromContext(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if requestID := ctx.Value(RequestContextID); requestID != nil {
		attrs = append(attrs, slog.String("request_id", requestID.(string)))
	}
	if chatID := ctx.Value(ChatContextID); chatID != nil {
		attrs = append(attrs, slog.String("chat_id", chatID.(string)))
	}
	if chatbotID := ctx.Value(ChatbotContextID); chatbotID != nil {
		attrs = append(attrs, slog.String("chatbot_id", chatbotID.(string)))
	}
	if orgID := ctx.Value(OrgContextID); orgID != nil {
		attrs = append(attrs, slog.String("org_id", orgID.(string)))
	}

	return attrs
}
