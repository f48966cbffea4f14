package mcp

import (
	"net/http"

	appChat "github.com/answerdesk/backend/internal/application/chat"
	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer MCP 服务器
// 把知识检索和机器人问答暴露给坐席侧的 AI 工具
type MCPServer struct {
	server      *mcp.Server
	handler     http.Handler
	coordinator *appChat.RetrievalCoordinator
	pipeline    *appChat.Pipeline
	chatbotRepo domainChat.ChatbotRepository
}

// NewServer 创建 MCP 服务器
func NewServer(
	coordinator *appChat.RetrievalCoordinator,
	pipeline *appChat.Pipeline,
	chatbotRepo domainChat.ChatbotRepository,
) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "answerdesk-backend",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	mcpServer := &MCPServer{
		server:      server,
		coordinator: coordinator,
		pipeline:    pipeline,
		chatbotRepo: chatbotRepo,
	}

	// 注册工具：search_knowledge
	mcp.AddTool(server, &mcp.Tool{
		Name: "search_knowledge",
		Description: `Search a chatbot's knowledge base (organization documents and chatbot context blocks) semantically.

Use this tool to look up support knowledge before drafting an answer for a customer.

Parameters:
- query (string, required): Natural language description of what you're looking for.
- chatbot_id (string, required): Chatbot whose knowledge to search.
- limit (int, optional): Maximum number of results (1-10, default: 5).

Returns: List of matching knowledge sources with title, snippet, source type, and similarity score.`,
	}, mcpServer.searchKnowledgeTool)

	// 注册工具：ask_chatbot
	mcp.AddTool(server, &mcp.Tool{
		Name: "ask_chatbot",
		Description: `Ask a question in an existing chat and get the chatbot's full answer.

Runs the same retrieval-augmented pipeline the customer-facing widget uses: knowledge retrieval, prompt assembly, generation, and escalation detection. The turn is persisted to the chat history.

Parameters:
- chat_id (string, required): Existing chat session ID.
- message (string, required): The question to ask.

Returns: The assistant answer, cited sources, escalation flag, and token usage.`,
	}, mcpServer.askChatbotTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
