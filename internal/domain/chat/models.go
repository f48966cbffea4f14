package chat

// SourceType 知识来源类型
type SourceType string

const (
	// SourceTypeOrgDocument 组织级文档
	SourceTypeOrgDocument SourceType = "ORG_DOCUMENT"
	// SourceTypeContextBlock 机器人专属知识块
	SourceTypeContextBlock SourceType = "CONTEXT_BLOCK"
)

// RetrievedSource 检索到的知识来源
// 表示一次检索中提供给模型的单个候选知识条目
type RetrievedSource struct {
	ID         string     `json:"id"`          // 来源索引中的唯一标识
	Title      string     `json:"title"`       // 标题
	Snippet    string     `json:"snippet"`     // 摘录（非全文，长度受限）
	SourceType SourceType `json:"source_type"` // 来源类型
	Score      float32    `json:"score"`       // 相似度分数 [0,1]，越大越相关
}

// Message 聊天消息记录
type Message struct {
	ID                string             // UUID
	ChatID            string             // 所属会话 ID
	Role              string             // user / assistant
	Content           string             // 消息内容
	Sources           []*RetrievedSource // 引用的知识来源（仅 assistant 消息）
	EscalationFlagged bool               // 是否触发人工升级
	EscalationReason  string             // 升级原因
	TokensUsed        int                // 消耗的 token 数
	CreatedAt         int64              // 创建时间戳（毫秒）
}

// Chat 聊天会话
type Chat struct {
	ID        string // UUID
	ChatbotID string // 所属机器人 ID
	OrgID     string // 所属组织 ID
	CreatedAt int64  // 创建时间戳（毫秒）
}

// 消息角色常量
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn 一轮完整对话
// 每个入站请求构造一个新实例，仅在产生它的管线调用内部被修改，
// 调用结束时一次性持久化（失败则整体丢弃，不落部分状态）
type ConversationTurn struct {
	UserMessage         string             `json:"user_message"`
	AssistantMessage    string             `json:"assistant_message"`
	Sources             []*RetrievedSource `json:"sources"`
	EscalationRequested bool               `json:"escalation_requested"`
	EscalationReason    string             `json:"escalation_reason,omitempty"`
	TokensUsed          int                `json:"tokens_used"`
}

// StreamEvent 流式输出事件
// 发送给传输层的最小单元；Content 已经过标记过滤。
// Sources 只随终止事件下发一次（检索结果在生成开始前即已稳定，
// 没有拆分到各个分片的必要，这是固定契约）
type StreamEvent struct {
	Content             string             `json:"content"`
	IsComplete          bool               `json:"is_complete"`
	Sources             []*RetrievedSource `json:"sources,omitempty"`
	EscalationRequested bool               `json:"escalation_requested,omitempty"`
	EscalationReason    string             `json:"escalation_reason,omitempty"`
	TokensUsed          int                `json:"tokens_used,omitempty"`

	// Err 生成中途失败时设置，作为终止错误事件传递给传输层，
	// 不参与 JSON 序列化（传输层自行决定错误的线上表示）
	Err error `json:"-"`
}

// PromptMessage 角色标记的提示消息段
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatbot 机器人及其存储的生成默认配置
type Chatbot struct {
	ID                   string  // UUID
	OrgID                string  // 所属组织 ID
	Name                 string  // 展示名称
	SystemPrompt         string  // 系统提示覆盖（可为空）
	Temperature          float32 // 默认采样温度
	MaxTokens            int     // 默认生成上限
	MaxSources           int     // 默认知识来源上限
	IncludeOrgDocs       bool    // 是否检索组织文档
	IncludeContextBlocks bool    // 是否检索知识块
	CoreRules            string  // 附加行为策略（不透明文本，拼入系统提示）
	UpdatedAt            int64   // 更新时间戳（毫秒）
}
