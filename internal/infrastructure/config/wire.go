package config

import "github.com/google/wire"

// ProviderSet 配置 ProviderSet
var ProviderSet = wire.NewSet(
	NewManager,
	ProvideConfig,
	NewServerConfig,
)

// ProvideConfig 从管理器提供启动时配置快照
func ProvideConfig(m *Manager) *Config {
	return m.Snapshot()
}
