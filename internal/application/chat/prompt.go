package chat

import (
	"fmt"
	"strings"

	domainChat "github.com/answerdesk/backend/internal/domain/chat"
)

// globalBehaviorRules 全局行为规则
// 逐字拼入每个系统提示段，包含升级触发指令和模型必须输出的
// 控制标记字面量。修改标记时必须同步修改 EscalationMarker
const globalBehaviorRules = `You are a customer support assistant. Answer the user's question using the provided context when it is relevant. Be concise and accurate. Never fabricate information that is not supported by the context or general knowledge.

If the user explicitly asks to speak with a human, or you cannot help with their request, or the conversation requires account-specific actions you cannot perform, include the exact token [ESCALATION_REQUESTED] in your reply so a human agent can be connected. Do not mention this token to the user or explain its purpose.`

// 历史裁剪默认边界
const (
	// DefaultMaxHistoryTurns 默认保留的最近历史消息条数
	DefaultMaxHistoryTurns = 20
	// DefaultHistoryTokenBudget 默认历史 token 预算
	DefaultHistoryTokenBudget = 3000
)

// TokenCounter token 计数接口
type TokenCounter interface {
	CountTokens(text string) int
}

// PromptAssembler 提示组装器
// 从系统指令、全局行为规则、检索来源和裁剪后的会话历史
// 确定性地构建有界提示。纯同步变换，无随机性、无时钟依赖，
// 相同输入产出逐字节相同的提示
type PromptAssembler struct {
	counter     TokenCounter
	maxTurns    int
	tokenBudget int
}

// NewPromptAssembler 创建提示组装器
func NewPromptAssembler(counter TokenCounter, maxTurns, tokenBudget int) *PromptAssembler {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxHistoryTurns
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultHistoryTokenBudget
	}
	return &PromptAssembler{
		counter:     counter,
		maxTurns:    maxTurns,
		tokenBudget: tokenBudget,
	}
}

// Assemble 组装角色标记的消息序列
// 顺序：system（全局规则 + 机器人覆盖 + 策略）→ Context 段（如有来源）
// → 裁剪后的历史 → 新用户消息。来源顺序保持协调器产出的排名顺序，
// 这是模型唯一的相关性信号
func (a *PromptAssembler) Assemble(
	history []*domainChat.Message,
	userMessage string,
	sources []*domainChat.RetrievedSource,
	cfg *domainChat.GenerationConfig,
) []*domainChat.PromptMessage {
	prompt := make([]*domainChat.PromptMessage, 0, len(history)+3)

	prompt = append(prompt, &domainChat.PromptMessage{
		Role:    domainChat.RoleSystem,
		Content: a.buildSystemPrompt(cfg),
	})

	if len(sources) > 0 {
		prompt = append(prompt, &domainChat.PromptMessage{
			Role:    domainChat.RoleSystem,
			Content: a.buildContextSegment(sources),
		})
	}

	for _, msg := range a.trimHistory(history) {
		prompt = append(prompt, &domainChat.PromptMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	// 新用户消息永远追加在最后，不参与裁剪
	prompt = append(prompt, &domainChat.PromptMessage{
		Role:    domainChat.RoleUser,
		Content: userMessage,
	})

	return prompt
}

// buildSystemPrompt 拼接系统提示段
func (a *PromptAssembler) buildSystemPrompt(cfg *domainChat.GenerationConfig) string {
	var b strings.Builder
	b.WriteString(globalBehaviorRules)
	if cfg.SystemPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(cfg.SystemPrompt)
	}
	if cfg.CoreRules != "" {
		b.WriteString("\n\n")
		b.WriteString(cfg.CoreRules)
	}
	return b.String()
}

// buildContextSegment 构建 Context 段
// 按协调器产出顺序逐条列出标题和摘录
func (a *PromptAssembler) buildContextSegment(sources []*domainChat.RetrievedSource) string {
	var b strings.Builder
	b.WriteString("Context: the following knowledge items may be relevant to the user's question, listed from most to least relevant.\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "\n%d. %s\n%s\n", i+1, s.Title, s.Snippet)
	}
	return b.String()
}

// trimHistory 裁剪会话历史
// 先按条数保留最近 maxTurns 条，再从最旧一端丢弃直到满足
// token 预算。最新的消息永远不会因预算被丢弃到零条以下
func (a *PromptAssembler) trimHistory(history []*domainChat.Message) []*domainChat.Message {
	if len(history) > a.maxTurns {
		history = history[len(history)-a.maxTurns:]
	}

	if a.counter == nil || len(history) == 0 {
		return history
	}

	total := 0
	for _, msg := range history {
		total += a.counter.CountTokens(msg.Content)
	}
	for total > a.tokenBudget && len(history) > 1 {
		total -= a.counter.CountTokens(history[0].Content)
		history = history[1:]
	}
	return history
}
