// Package vector 提供向量库连接与知识索引检索
package vector

import (
	"fmt"

	"github.com/answerdesk/backend/internal/infrastructure/config"
	"github.com/qdrant/go-client/qdrant"
)

// NewQdrantClient 创建 Qdrant gRPC 客户端
// 集合由外部索引管道维护，服务端只读查询
func NewQdrantClient(cfg *config.Config) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}
