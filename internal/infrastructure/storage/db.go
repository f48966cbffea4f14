package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/answerdesk/backend/internal/infrastructure/config"
	_ "modernc.org/sqlite"
)

// OpenDB 打开数据库连接并初始化表结构
func OpenDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := cfg.DatabasePath()

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// initSchema 初始化表结构
func initSchema(db *sql.DB) error {
	// chats 表
	createChatsSQL := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		chatbot_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createChatsSQL); err != nil {
		return fmt.Errorf("failed to create chats table: %w", err)
	}

	// messages 表
	// rowid 保证同一事务内用户消息先于助手消息的插入顺序
	createMessagesSQL := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		sources TEXT,
		escalation_flagged INTEGER DEFAULT 0,
		escalation_reason TEXT,
		tokens_used INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createMessagesSQL); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	createMessagesIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);`

	if _, err := db.Exec(createMessagesIndexSQL); err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}

	// chatbots 表
	createChatbotsSQL := `
	CREATE TABLE IF NOT EXISTS chatbots (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		system_prompt TEXT,
		temperature REAL NOT NULL,
		max_tokens INTEGER NOT NULL,
		max_sources INTEGER NOT NULL,
		include_org_docs INTEGER DEFAULT 1,
		include_context_blocks INTEGER DEFAULT 1,
		core_rules TEXT,
		updated_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createChatbotsSQL); err != nil {
		return fmt.Errorf("failed to create chatbots table: %w", err)
	}

	createChatbotsIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_chatbots_org_id ON chatbots(org_id);`

	if _, err := db.Exec(createChatbotsIndexSQL); err != nil {
		return fmt.Errorf("failed to create chatbots indexes: %w", err)
	}

	return nil
}
