package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"log/slog"

	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/log"
)

// DefaultRetrievalTimeout 单个索引查询的默认超时
const DefaultRetrievalTimeout = 3 * time.Second

// RetrievalCoordinator 检索协调器
// 并发查询两个向量索引（组织文档 / 知识块），合并、去重、排序、
// 截断到来源预算。检索失败在这里就地吸收：协调器从不报错，
// 零来源返回空序列，由提示组装器决定如何继续
type RetrievalCoordinator struct {
	orgDocs       domainChat.VectorIndex
	contextBlocks domainChat.VectorIndex
	timeout       time.Duration
	logger        *slog.Logger
}

// NewRetrievalCoordinator 创建检索协调器
func NewRetrievalCoordinator(orgDocs, contextBlocks domainChat.VectorIndex, timeout time.Duration) *RetrievalCoordinator {
	if timeout <= 0 {
		timeout = DefaultRetrievalTimeout
	}
	return &RetrievalCoordinator{
		orgDocs:       orgDocs,
		contextBlocks: contextBlocks,
		timeout:       timeout,
		logger:        log.NewModuleLogger("chat", "retrieval"),
	}
}

// Retrieve 执行双索引检索
// 两个查询各自持有独立超时和失败边界，一个失败不会取消另一个；
// 超时后已到达的部分结果照常使用
func (c *RetrievalCoordinator) Retrieve(
	ctx context.Context,
	query string,
	chatbotID, orgID string,
	cfg *domainChat.GenerationConfig,
) []*domainChat.RetrievedSource {
	if cfg.MaxSources == 0 {
		return nil
	}

	var (
		wg           sync.WaitGroup
		blockResults []*domainChat.RetrievedSource
		docResults   []*domainChat.RetrievedSource
	)

	if cfg.IncludeContextBlocks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blockResults = c.searchOne(ctx, c.contextBlocks, query, chatbotID, cfg.MaxSources, domainChat.SourceTypeContextBlock)
		}()
	}
	if cfg.IncludeOrgDocs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docResults = c.searchOne(ctx, c.orgDocs, query, orgID, cfg.MaxSources, domainChat.SourceTypeOrgDocument)
		}()
	}
	wg.Wait()

	return c.mergeResults(blockResults, docResults, cfg.MaxSources)
}

// searchOne 查询单个索引，失败降级为零结果
func (c *RetrievalCoordinator) searchOne(
	ctx context.Context,
	index domainChat.VectorIndex,
	query, scopeID string,
	topK int,
	sourceType domainChat.SourceType,
) []*domainChat.RetrievedSource {
	if index == nil {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results, err := index.Search(qctx, query, scopeID, topK)
	if err != nil {
		// 检索降级不阻断生成：记录后按零来源继续
		c.logger.Warn("Index query degraded to zero sources",
			"source_type", sourceType,
			"scope_id", scopeID,
			"error", err,
		)
		return nil
	}
	return results
}

// mergeResults 合并两个索引的结果
// 按 sourceType+id 去重（保留高分），按分数降序排序，
// 同分时知识块优先于组织文档（机器人专属内容更精确），
// 最后截断到 maxSources
func (c *RetrievalCoordinator) mergeResults(
	blockResults, docResults []*domainChat.RetrievedSource,
	maxSources int,
) []*domainChat.RetrievedSource {
	seen := make(map[string]*domainChat.RetrievedSource)
	order := make([]string, 0, len(blockResults)+len(docResults))

	for _, r := range append(append([]*domainChat.RetrievedSource{}, blockResults...), docResults...) {
		if r == nil {
			continue
		}
		key := string(r.SourceType) + ":" + r.ID
		if prev, ok := seen[key]; ok {
			if r.Score > prev.Score {
				seen[key] = r
			}
			continue
		}
		seen[key] = r
		order = append(order, key)
	}

	merged := make([]*domainChat.RetrievedSource, 0, len(order))
	for _, key := range order {
		merged = append(merged, seen[key])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		// 同分：CONTEXT_BLOCK 排在 ORG_DOCUMENT 之前
		return merged[i].SourceType == domainChat.SourceTypeContextBlock &&
			merged[j].SourceType == domainChat.SourceTypeOrgDocument
	})

	if len(merged) > maxSources {
		merged = merged[:maxSources]
	}
	return merged
}
