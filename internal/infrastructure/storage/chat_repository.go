package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/answerdesk/backend/internal/domain/chat"
)

// chatRepository 会话与消息 SQLite 仓储实现
type chatRepository struct {
	db *sql.DB
}

// NewChatRepository 创建会话仓储实例
func NewChatRepository(db *sql.DB) chat.ChatRepository {
	return &chatRepository{db: db}
}

// CreateChat 创建会话
func (r *chatRepository) CreateChat(c *chat.Chat) error {
	query := `
		INSERT INTO chats (id, chatbot_id, org_id, created_at)
		VALUES (?, ?, ?, ?)`

	_, err := r.db.Exec(query, c.ID, c.ChatbotID, c.OrgID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// GetChat 根据 ID 查找会话
func (r *chatRepository) GetChat(chatID string) (*chat.Chat, error) {
	query := `
		SELECT id, chatbot_id, org_id, created_at
		FROM chats
		WHERE id = ?`

	var c chat.Chat
	err := r.db.QueryRow(query, chatID).Scan(
		&c.ID,
		&c.ChatbotID,
		&c.OrgID,
		&c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, chat.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}

	return &c, nil
}

// AppendTurn 以单个事务追加一轮对话
// 用户消息先插入，依赖 rowid 保证读取顺序；任一失败整轮回滚
func (r *chatRepository) AppendTurn(chatID string, userMsg, assistantMsg *chat.Message) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMessage(tx, userMsg); err != nil {
		return err
	}
	if err := insertMessage(tx, assistantMsg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// insertMessage 在事务内插入单条消息
func insertMessage(tx *sql.Tx, msg *chat.Message) error {
	var sources sql.NullString
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		sources = sql.NullString{String: string(data), Valid: true}
	}

	flagged := 0
	if msg.EscalationFlagged {
		flagged = 1
	}

	query := `
		INSERT INTO messages
		(id, chat_id, role, content, sources, escalation_flagged, escalation_reason, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.Exec(query,
		msg.ID,
		msg.ChatID,
		msg.Role,
		msg.Content,
		sources,
		flagged,
		msg.EscalationReason,
		msg.TokensUsed,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// RecentMessages 按插入顺序读取最近 limit 条消息（旧的在前）
func (r *chatRepository) RecentMessages(chatID string, limit int) ([]*chat.Message, error) {
	query := `
		SELECT id, chat_id, role, content, sources, escalation_flagged, escalation_reason, tokens_used, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY rowid DESC
		LIMIT ?`

	rows, err := r.db.Query(query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*chat.Message
	for rows.Next() {
		var msg chat.Message
		var sources sql.NullString
		var flagged int
		var reason sql.NullString

		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&sources,
			&flagged,
			&reason,
			&msg.TokensUsed,
			&msg.CreatedAt,
		); err != nil {
			continue
		}

		msg.EscalationFlagged = flagged == 1
		msg.EscalationReason = reason.String
		if sources.Valid {
			if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
				msg.Sources = nil
			}
		}

		messages = append(messages, &msg)
	}

	// 查询按 rowid 倒序取最近 N 条，反转为旧的在前
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// 编译时检查接口实现
var _ chat.ChatRepository = (*chatRepository)(nil)
