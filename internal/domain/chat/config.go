package chat

import "fmt"

// 生成配置边界
const (
	// DefaultMaxSources 默认知识来源上限
	DefaultMaxSources = 5
	// DefaultMaxTokens 默认生成 token 上限
	DefaultMaxTokens = 1024
	// DefaultTemperature 默认采样温度
	DefaultTemperature = 0.3
	// MinTemperature / MaxTemperature 提供商接受的温度范围
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// GenerationConfig 单次调用的已解析生成参数
// 纯配置值，无身份；每次调用由机器人存储默认值与调用方覆盖
// 逐字段合并得到（调用方覆盖优先）
type GenerationConfig struct {
	SystemPrompt         string  // 系统提示覆盖（可为空）
	Temperature          float32 // 采样温度，夹取到提供商范围
	MaxTokens            int     // 生成上限，必须 > 0
	MaxSources           int     // 知识来源上限，必须 >= 0
	IncludeOrgDocs       bool    // 是否检索组织文档
	IncludeContextBlocks bool    // 是否检索知识块
	CoreRules            string  // 附加行为策略
}

// GenerationOverrides 调用方提供的逐字段覆盖
// 指针字段为 nil 表示沿用机器人存储默认值
type GenerationOverrides struct {
	SystemPrompt         *string  `json:"system_prompt,omitempty"`
	Temperature          *float32 `json:"temperature,omitempty"`
	MaxTokens            *int     `json:"max_tokens,omitempty"`
	MaxSources           *int     `json:"max_sources,omitempty"`
	IncludeOrgDocs       *bool    `json:"include_org_docs,omitempty"`
	IncludeContextBlocks *bool    `json:"include_context_blocks,omitempty"`
}

// ResolveGenerationConfig 合并机器人默认值与调用方覆盖
// 合并后立即校验，非法配置在任何网络调用之前报错
func ResolveGenerationConfig(bot *Chatbot, overrides *GenerationOverrides) (*GenerationConfig, error) {
	cfg := &GenerationConfig{
		SystemPrompt:         bot.SystemPrompt,
		Temperature:          bot.Temperature,
		MaxTokens:            bot.MaxTokens,
		MaxSources:           bot.MaxSources,
		IncludeOrgDocs:       bot.IncludeOrgDocs,
		IncludeContextBlocks: bot.IncludeContextBlocks,
		CoreRules:            bot.CoreRules,
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	if overrides != nil {
		if overrides.SystemPrompt != nil {
			cfg.SystemPrompt = *overrides.SystemPrompt
		}
		if overrides.Temperature != nil {
			cfg.Temperature = *overrides.Temperature
		}
		if overrides.MaxTokens != nil {
			cfg.MaxTokens = *overrides.MaxTokens
		}
		if overrides.MaxSources != nil {
			cfg.MaxSources = *overrides.MaxSources
		}
		if overrides.IncludeOrgDocs != nil {
			cfg.IncludeOrgDocs = *overrides.IncludeOrgDocs
		}
		if overrides.IncludeContextBlocks != nil {
			cfg.IncludeContextBlocks = *overrides.IncludeContextBlocks
		}
	}

	// 温度夹取而非报错：提供商范围外的值静默收敛
	if cfg.Temperature < MinTemperature {
		cfg.Temperature = MinTemperature
	}
	if cfg.Temperature > MaxTemperature {
		cfg.Temperature = MaxTemperature
	}

	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidConfig, cfg.MaxTokens)
	}
	if cfg.MaxSources < 0 {
		return nil, fmt.Errorf("%w: max_sources must be non-negative, got %d", ErrInvalidConfig, cfg.MaxSources)
	}

	return cfg, nil
}
