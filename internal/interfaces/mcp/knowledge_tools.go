package mcp

import (
	"context"
	"fmt"

	appChat "github.com/answerdesk/backend/internal/application/chat"
	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchKnowledgeInput 知识检索工具输入
type SearchKnowledgeInput struct {
	Query     string `json:"query" jsonschema:"Search query in natural language (required)"`
	ChatbotID string `json:"chatbot_id" jsonschema:"Chatbot whose knowledge base to search (required)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results, defaults to 5, max 10"`
}

// KnowledgeResult 单条知识检索结果
type KnowledgeResult struct {
	ID         string  `json:"id" jsonschema:"Source identifier"`
	Title      string  `json:"title" jsonschema:"Source title"`
	Snippet    string  `json:"snippet" jsonschema:"Source excerpt"`
	SourceType string  `json:"source_type" jsonschema:"ORG_DOCUMENT or CONTEXT_BLOCK"`
	Score      float32 `json:"score" jsonschema:"Similarity score in [0,1], higher is more relevant"`
}

// SearchKnowledgeOutput 知识检索工具输出
type SearchKnowledgeOutput struct {
	Results    []*KnowledgeResult `json:"results" jsonschema:"Matching knowledge sources, best first"`
	TotalCount int                `json:"total_count" jsonschema:"Number of results returned"`
}

// searchKnowledgeTool 知识检索工具实现
func (s *MCPServer) searchKnowledgeTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchKnowledgeInput,
) (*mcp.CallToolResult, SearchKnowledgeOutput, error) {
	output := SearchKnowledgeOutput{
		Results: []*KnowledgeResult{},
	}

	if input.Query == "" {
		return nil, output, fmt.Errorf("query is required")
	}
	if input.ChatbotID == "" {
		return nil, output, fmt.Errorf("chatbot_id is required")
	}

	bot, err := s.chatbotRepo.GetChatbot(input.ChatbotID)
	if err != nil {
		return nil, output, fmt.Errorf("cannot load chatbot %s: %w", input.ChatbotID, err)
	}

	cfg, err := domainChat.ResolveGenerationConfig(bot, nil)
	if err != nil {
		return nil, output, err
	}

	// 默认 5 条，最多 10 条，避免上下文过载
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}
	if limit > 10 {
		limit = 10
	}
	cfg.MaxSources = limit

	sources := s.coordinator.Retrieve(ctx, input.Query, bot.ID, bot.OrgID, cfg)

	output.Results = make([]*KnowledgeResult, 0, len(sources))
	for _, src := range sources {
		output.Results = append(output.Results, &KnowledgeResult{
			ID:         src.ID,
			Title:      src.Title,
			Snippet:    src.Snippet,
			SourceType: string(src.SourceType),
			Score:      src.Score,
		})
	}
	output.TotalCount = len(output.Results)

	return nil, output, nil
}

// AskChatbotInput 机器人问答工具输入
type AskChatbotInput struct {
	ChatID  string `json:"chat_id" jsonschema:"Existing chat session ID (required)"`
	Message string `json:"message" jsonschema:"Question to ask the chatbot (required)"`
}

// AskChatbotOutput 机器人问答工具输出
type AskChatbotOutput struct {
	Answer              string             `json:"answer" jsonschema:"The chatbot's full answer"`
	Sources             []*KnowledgeResult `json:"sources,omitempty" jsonschema:"Knowledge sources the answer drew on"`
	EscalationRequested bool               `json:"escalation_requested" jsonschema:"True when the chatbot asked for a human handoff"`
	TokensUsed          int                `json:"tokens_used" jsonschema:"Tokens consumed by the generation call"`
}

// askChatbotTool 机器人问答工具实现
func (s *MCPServer) askChatbotTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AskChatbotInput,
) (*mcp.CallToolResult, AskChatbotOutput, error) {
	var output AskChatbotOutput

	if input.ChatID == "" {
		return nil, output, fmt.Errorf("chat_id is required")
	}
	if input.Message == "" {
		return nil, output, fmt.Errorf("message is required")
	}

	turn, err := s.pipeline.Respond(ctx, &appChat.TurnRequest{
		ChatID:  input.ChatID,
		Message: input.Message,
	})
	if err != nil {
		return nil, output, fmt.Errorf("chat failed: %w", err)
	}

	output.Answer = turn.AssistantMessage
	output.EscalationRequested = turn.EscalationRequested
	output.TokensUsed = turn.TokensUsed
	for _, src := range turn.Sources {
		output.Sources = append(output.Sources, &KnowledgeResult{
			ID:         src.ID,
			Title:      src.Title,
			Snippet:    src.Snippet,
			SourceType: string(src.SourceType),
			Score:      src.Score,
		})
	}

	return nil, output, nil
}
