package chat

import "errors"

// 管线错误分类
// 检索类错误在协调器内部降级吸收；生成类错误对整次调用致命；
// 持久化错误在答案已送达后只记录日志，不再向调用方抛出
var (
	// ErrIndexUnavailable 向量索引后端不可达（按索引降级，非致命）
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrEmbeddingFailed 查询向量化失败（等同索引不可用处理）
	ErrEmbeddingFailed = errors.New("query embedding failed")

	// ErrGenerationFailed 生成后端错误（致命，不落任何部分消息）
	ErrGenerationFailed = errors.New("generation failed")

	// ErrGenerationTimeout 生成超时（致命）
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrPersistenceFailed 对话落库失败
	ErrPersistenceFailed = errors.New("turn persistence failed")

	// ErrInvalidConfig 生成配置非法（在任何网络调用之前返回）
	ErrInvalidConfig = errors.New("invalid generation config")

	// ErrChatNotFound 会话不存在
	ErrChatNotFound = errors.New("chat not found")

	// ErrChatbotNotFound 机器人不存在
	ErrChatbotNotFound = errors.New("chatbot not found")
)
