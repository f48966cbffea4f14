// Package config 提供应用配置的加载、默认值与热更新
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvHTTPPort HTTP 端口环境变量名
	EnvHTTPPort = "ANSWERDESK_HTTP_PORT"
	// EnvConfigPath 配置文件路径环境变量名
	EnvConfigPath = "ANSWERDESK_CONFIG"
	// DefaultConfigFileName 默认配置文件名
	DefaultConfigFileName = "config.yaml"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTPPort 固定端口，同时用于单例锁
	HTTPPort string `yaml:"http_port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 数据库文件路径，留空表示使用数据目录下的默认位置
	Path string `yaml:"path"`
}

// EmbeddingConfig Embedding API 配置
type EmbeddingConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// QdrantConfig 向量库连接配置
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// OrgDocumentsCollection 组织文档集合名
	OrgDocumentsCollection string `yaml:"org_documents_collection"`
	// ContextBlocksCollection 机器人上下文块集合名
	ContextBlocksCollection string `yaml:"context_blocks_collection"`
}

// LLMConfig 生成模型 API 配置
type LLMConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// TimeoutSeconds 单次生成调用超时（秒）
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// TimeoutMS 单路检索超时（毫秒）
	TimeoutMS int `yaml:"timeout_ms"`
}

// HistoryConfig 提示历史裁剪配置
type HistoryConfig struct {
	// MaxTurns 提示中保留的历史条数上限
	MaxTurns int `yaml:"max_turns"`
	// TokenBudget 历史段 token 预算
	TokenBudget int `yaml:"token_budget"`
}

// NewConfig 创建配置（默认值，环境变量覆盖端口）
func NewConfig() *Config {
	httpPort := ":19080"
	if p := os.Getenv(EnvHTTPPort); p != "" {
		httpPort = p
	}

	return &Config{
		Server: ServerConfig{
			HTTPPort: httpPort,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Qdrant: QdrantConfig{
			Host:                    "localhost",
			Port:                    6334,
			OrgDocumentsCollection:  "org_documents",
			ContextBlocksCollection: "context_blocks",
		},
		LLM: LLMConfig{
			TimeoutSeconds: 120,
		},
		Retrieval: RetrievalConfig{
			TimeoutMS: 3000,
		},
		History: HistoryConfig{
			MaxTurns:    20,
			TokenBudget: 3000,
		},
	}
}

// ConfigFilePath 配置文件路径
// 优先读取 ANSWERDESK_CONFIG 环境变量，默认在数据目录下
func ConfigFilePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(GetDataDir(), DefaultConfigFileName)
}

// Load 从文件加载配置
// 文件不存在时返回默认配置，不视为错误
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize 回填非法或缺失的字段
func (c *Config) normalize() {
	d := NewConfig()

	if c.Server.HTTPPort == "" {
		c.Server.HTTPPort = d.Server.HTTPPort
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = d.Qdrant.Host
	}
	if c.Qdrant.Port <= 0 {
		c.Qdrant.Port = d.Qdrant.Port
	}
	if c.Qdrant.OrgDocumentsCollection == "" {
		c.Qdrant.OrgDocumentsCollection = d.Qdrant.OrgDocumentsCollection
	}
	if c.Qdrant.ContextBlocksCollection == "" {
		c.Qdrant.ContextBlocksCollection = d.Qdrant.ContextBlocksCollection
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if c.Retrieval.TimeoutMS <= 0 {
		c.Retrieval.TimeoutMS = d.Retrieval.TimeoutMS
	}
	if c.History.MaxTurns <= 0 {
		c.History.MaxTurns = d.History.MaxTurns
	}
	if c.History.TokenBudget <= 0 {
		c.History.TokenBudget = d.History.TokenBudget
	}
}

// RetrievalTimeout 单路检索超时
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutMS) * time.Millisecond
}

// GenerationTimeout 生成调用超时
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// DatabasePath 数据库文件路径，未配置时落在数据目录下
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(GetDataDir(), "answerdesk.db")
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}
