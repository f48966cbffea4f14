package vector

import "github.com/google/wire"

// ProviderSet Vector 基础设施层 ProviderSet
// 两个 IndexClient 同型，由应用层按集合分别构造
var ProviderSet = wire.NewSet(
	NewQdrantClient,
)
