package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/config"
	"github.com/answerdesk/backend/internal/infrastructure/embedding"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/qdrant/go-client/qdrant"
)

// IndexClient 单个 Qdrant 集合上的知识索引
// 集合内的点按 scopeField 归属租户，检索时强制按作用域过滤
type IndexClient struct {
	client     *qdrant.Client
	embedder   *embedding.Client
	collection string
	scopeField string
	sourceType chat.SourceType
	logger     *slog.Logger
}

// NewOrgDocumentIndex 创建组织文档索引（按 org_id 过滤）
func NewOrgDocumentIndex(client *qdrant.Client, embedder *embedding.Client, cfg *config.Config) *IndexClient {
	return &IndexClient{
		client:     client,
		embedder:   embedder,
		collection: cfg.Qdrant.OrgDocumentsCollection,
		scopeField: "org_id",
		sourceType: chat.SourceTypeOrgDocument,
		logger:     log.NewModuleLogger("vector", "org_documents"),
	}
}

// NewContextBlockIndex 创建机器人知识块索引（按 chatbot_id 过滤）
func NewContextBlockIndex(client *qdrant.Client, embedder *embedding.Client, cfg *config.Config) *IndexClient {
	return &IndexClient{
		client:     client,
		embedder:   embedder,
		collection: cfg.Qdrant.ContextBlocksCollection,
		scopeField: "chatbot_id",
		sourceType: chat.SourceTypeContextBlock,
		logger:     log.NewModuleLogger("vector", "context_blocks"),
	}
}

// Search 语义检索
// 查询向量化失败和索引查询失败分别映射到各自的领域错误
func (c *IndexClient) Search(ctx context.Context, query, scopeID string, topK int) ([]*chat.RetrievedSource, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrEmbeddingFailed, err)
	}

	limit := uint64(topK)
	hits, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(c.scopeField, scopeID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrIndexUnavailable, err)
	}

	c.logger.Debug("Index query completed",
		"collection", c.collection,
		"hits_count", len(hits),
	)

	results := make([]*chat.RetrievedSource, 0, len(hits))
	for _, hit := range hits {
		if source := c.hitToSource(hit); source != nil {
			results = append(results, source)
		}
	}
	return results, nil
}

// hitToSource 将命中转换为知识来源，payload 缺失的点跳过
func (c *IndexClient) hitToSource(hit *qdrant.ScoredPoint) *chat.RetrievedSource {
	payload := hit.GetPayload()
	if payload == nil {
		return nil
	}

	source := &chat.RetrievedSource{
		ID:         extractPointID(hit.GetId()),
		SourceType: c.sourceType,
		Score:      hit.GetScore(),
	}

	if val, ok := payload["id"]; ok {
		if id := extractStringValue(val); id != "" {
			source.ID = id
		}
	}
	if val, ok := payload["title"]; ok {
		source.Title = extractStringValue(val)
	}
	if val, ok := payload["snippet"]; ok {
		source.Snippet = extractStringValue(val)
	}

	if source.ID == "" {
		return nil
	}
	return source
}

// extractPointID 从 qdrant.PointId 提取字符串 ID
func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

// extractStringValue 从 qdrant.Value 提取字符串值
func extractStringValue(val *qdrant.Value) string {
	if val == nil {
		return ""
	}
	return val.GetStringValue()
}

// 编译时检查接口实现
var _ chat.VectorIndex = (*IndexClient)(nil)
