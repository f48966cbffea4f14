package chat

import (
	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/config"
	"github.com/answerdesk/backend/internal/infrastructure/embedding"
	"github.com/answerdesk/backend/internal/infrastructure/llm"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/answerdesk/backend/internal/infrastructure/token"
	"github.com/answerdesk/backend/internal/infrastructure/vector"
	"github.com/google/wire"
	"github.com/qdrant/go-client/qdrant"
)

// ProviderSet 聊天应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideTokenCounter,
	ProvideRetrievalCoordinator,
	ProvidePromptAssembler,
	ProvideGenerationTimeout,
	NewTurnPersister,
	NewPipeline,
	wire.Bind(new(domainChat.Generator), new(*llm.Client)),
)

// ProvideTokenCounter 提供 token 计数器
// tiktoken 编码文件加载失败时回退到字符估算
func ProvideTokenCounter() TokenCounter {
	estimator, err := token.GetEstimator()
	if err != nil {
		log.GetLogger().Warn("Failed to load tiktoken encoding, falling back to char estimate",
			"error", err,
		)
		return token.CharEstimator{}
	}
	return estimator
}

// ProvideRetrievalCoordinator 构造两路知识索引并组装检索协调器
func ProvideRetrievalCoordinator(
	client *qdrant.Client,
	embedder *embedding.Client,
	cfg *config.Config,
) *RetrievalCoordinator {
	orgDocs := vector.NewOrgDocumentIndex(client, embedder, cfg)
	contextBlocks := vector.NewContextBlockIndex(client, embedder, cfg)
	return NewRetrievalCoordinator(orgDocs, contextBlocks, cfg.RetrievalTimeout())
}

// ProvidePromptAssembler 按配置的历史裁剪参数构造提示组装器
func ProvidePromptAssembler(counter TokenCounter, cfg *config.Config) *PromptAssembler {
	return NewPromptAssembler(counter, cfg.History.MaxTurns, cfg.History.TokenBudget)
}

// ProvideGenerationTimeout 提供生成调用超时
func ProvideGenerationTimeout(cfg *config.Config) GenerationTimeout {
	return GenerationTimeout(cfg.GenerationTimeout())
}
