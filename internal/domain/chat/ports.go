package chat

import "context"

// VectorIndex 向量索引服务接口
// 封装一个逻辑集合上的向量化 + 近邻查询，只读无副作用。
// scopeID 把结果限定到单个组织或单个机器人的知识块集合，
// 实现绝不能返回范围之外的条目
type VectorIndex interface {
	Search(ctx context.Context, query, scopeID string, topK int) ([]*RetrievedSource, error)
}

// RawChunk 生成后端产出的原始文本分片
// Done 标记终止分片；Err 非 nil 表示流在此处失败
type RawChunk struct {
	Content    string
	Done       bool
	TokensUsed int // 提供商在终止分片附带的用量，可能为 0
	Err        error
}

// Generator 生成后端接口
// 两种调用形态共享同一语义，均由提供商的 token 生成循环驱动
type Generator interface {
	// Generate 阻塞式补全，返回完整文本和用量
	Generate(ctx context.Context, prompt []*PromptMessage, cfg *GenerationConfig) (string, int, error)

	// GenerateStream 流式补全
	// 返回的通道不可重启，终止分片之后关闭；
	// 消费方通过取消 ctx 提前终止，底层调用必须随之取消
	GenerateStream(ctx context.Context, prompt []*PromptMessage, cfg *GenerationConfig) (<-chan *RawChunk, error)
}
