package storage

import (
	"database/sql"
	"fmt"

	"github.com/answerdesk/backend/internal/domain/chat"
)

// chatbotRepository 机器人配置 SQLite 仓储实现
type chatbotRepository struct {
	db *sql.DB
}

// NewChatbotRepository 创建机器人仓储实例
func NewChatbotRepository(db *sql.DB) chat.ChatbotRepository {
	return &chatbotRepository{db: db}
}

// GetChatbot 根据 ID 查找机器人
func (r *chatbotRepository) GetChatbot(chatbotID string) (*chat.Chatbot, error) {
	query := `
		SELECT id, org_id, name, system_prompt, temperature, max_tokens, max_sources,
		       include_org_docs, include_context_blocks, core_rules, updated_at
		FROM chatbots
		WHERE id = ?`

	var bot chat.Chatbot
	var systemPrompt, coreRules sql.NullString
	var includeOrgDocs, includeContextBlocks int

	err := r.db.QueryRow(query, chatbotID).Scan(
		&bot.ID,
		&bot.OrgID,
		&bot.Name,
		&systemPrompt,
		&bot.Temperature,
		&bot.MaxTokens,
		&bot.MaxSources,
		&includeOrgDocs,
		&includeContextBlocks,
		&coreRules,
		&bot.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, chat.ErrChatbotNotFound
		}
		return nil, fmt.Errorf("failed to query chatbot: %w", err)
	}

	bot.SystemPrompt = systemPrompt.String
	bot.CoreRules = coreRules.String
	bot.IncludeOrgDocs = includeOrgDocs == 1
	bot.IncludeContextBlocks = includeContextBlocks == 1

	return &bot, nil
}

// SaveChatbot 保存机器人配置
func (r *chatbotRepository) SaveChatbot(bot *chat.Chatbot) error {
	includeOrgDocs := 0
	if bot.IncludeOrgDocs {
		includeOrgDocs = 1
	}
	includeContextBlocks := 0
	if bot.IncludeContextBlocks {
		includeContextBlocks = 1
	}

	// 使用 INSERT OR REPLACE 实现 upsert
	query := `
		INSERT OR REPLACE INTO chatbots
		(id, org_id, name, system_prompt, temperature, max_tokens, max_sources,
		 include_org_docs, include_context_blocks, core_rules, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		bot.ID,
		bot.OrgID,
		bot.Name,
		bot.SystemPrompt,
		bot.Temperature,
		bot.MaxTokens,
		bot.MaxSources,
		includeOrgDocs,
		includeContextBlocks,
		bot.CoreRules,
		bot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save chatbot: %w", err)
	}
	return nil
}

// 编译时检查接口实现
var _ chat.ChatbotRepository = (*chatbotRepository)(nil)
