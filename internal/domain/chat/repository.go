package chat

// ChatRepository 会话与消息仓库接口
type ChatRepository interface {
	// 会话相关方法
	CreateChat(chat *Chat) error
	GetChat(chatID string) (*Chat, error)

	// AppendTurn 以单个事务追加一轮对话（用户消息 + 助手消息）
	// 任一写入失败则整轮回滚
	AppendTurn(chatID string, userMsg, assistantMsg *Message) error

	// RecentMessages 按插入顺序读取最近 limit 条消息（旧的在前）
	RecentMessages(chatID string, limit int) ([]*Message, error)
}

// ChatbotRepository 机器人配置仓库接口
type ChatbotRepository interface {
	GetChatbot(chatbotID string) (*Chatbot, error)
	SaveChatbot(bot *Chatbot) error
}
