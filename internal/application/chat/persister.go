package chat

import (
	"fmt"
	"time"

	"log/slog"

	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/log"
	"github.com/google/uuid"
)

// TurnPersister 对话落库器
// 在生成完成后把一轮对话（用户消息 + 助手消息）作为单个逻辑单元
// 写入仓库。流式调用在终止分片之后调用一次，使用累积全文和
// 最终升级状态，不按分片写入
type TurnPersister struct {
	repo   domainChat.ChatRepository
	logger *slog.Logger
}

// NewTurnPersister 创建对话落库器
func NewTurnPersister(repo domainChat.ChatRepository) *TurnPersister {
	return &TurnPersister{
		repo:   repo,
		logger: log.NewModuleLogger("chat", "persister"),
	}
}

// Persist 持久化一轮对话
// 任一写入失败对调用方表现为整轮失败；调用方（管线）负责
// 只记录日志而不让已送达的答案失效
func (p *TurnPersister) Persist(chatID string, turn *domainChat.ConversationTurn) error {
	now := time.Now().UnixMilli()

	userMsg := &domainChat.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      domainChat.RoleUser,
		Content:   turn.UserMessage,
		CreatedAt: now,
	}
	assistantMsg := &domainChat.Message{
		ID:                uuid.NewString(),
		ChatID:            chatID,
		Role:              domainChat.RoleAssistant,
		Content:           turn.AssistantMessage,
		Sources:           turn.Sources,
		EscalationFlagged: turn.EscalationRequested,
		EscalationReason:  turn.EscalationReason,
		TokensUsed:        turn.TokensUsed,
		CreatedAt:         now,
	}

	if err := p.repo.AppendTurn(chatID, userMsg, assistantMsg); err != nil {
		return fmt.Errorf("%w: %v", domainChat.ErrPersistenceFailed, err)
	}

	p.logger.Debug("Turn persisted",
		"chat_id", chatID,
		"escalation", turn.EscalationRequested,
		"sources", len(turn.Sources),
	)
	return nil
}
