package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/log"
)

// DefaultGenerationTimeout 生成调用的默认超时（比检索超时长得多）
const DefaultGenerationTimeout = 120 * time.Second

// GenerationTimeout 生成调用超时的注入类型
type GenerationTimeout time.Duration

// TurnRequest 一次管线调用的入参
type TurnRequest struct {
	ChatID    string                          `json:"-"`
	Message   string                          `json:"message" binding:"required"`
	Overrides *domainChat.GenerationOverrides `json:"overrides,omitempty"`
}

// Pipeline 上下文增强的聊天生成管线
// 一次调用 = 一个逻辑任务：解析配置 → 并发检索 → 组装提示 →
// 驱动生成 → 标记过滤 → 一次性落库。除两路检索外没有其他并行，
// 生成和过滤天然串行（过滤器必须按产出顺序看到分片）。
// 所有依赖均为无状态服务句柄，可在并发调用间只读共享；
// ConversationTurn 和 MarkerFilter 缓冲由单次调用独占
type Pipeline struct {
	chatRepo    domainChat.ChatRepository
	chatbotRepo domainChat.ChatbotRepository
	coordinator *RetrievalCoordinator
	assembler   *PromptAssembler
	generator   domainChat.Generator
	persister   *TurnPersister
	counter     TokenCounter
	genTimeout  time.Duration
	logger      *slog.Logger
}

// NewPipeline 创建聊天管线
func NewPipeline(
	chatRepo domainChat.ChatRepository,
	chatbotRepo domainChat.ChatbotRepository,
	coordinator *RetrievalCoordinator,
	assembler *PromptAssembler,
	generator domainChat.Generator,
	persister *TurnPersister,
	counter TokenCounter,
	timeout GenerationTimeout,
) *Pipeline {
	genTimeout := time.Duration(timeout)
	if genTimeout <= 0 {
		genTimeout = DefaultGenerationTimeout
	}
	return &Pipeline{
		chatRepo:    chatRepo,
		chatbotRepo: chatbotRepo,
		coordinator: coordinator,
		assembler:   assembler,
		generator:   generator,
		persister:   persister,
		counter:     counter,
		genTimeout:  genTimeout,
		logger:      log.NewModuleLogger("chat", "pipeline"),
	}
}

// prepared 检索与提示组装完成后的调用中间状态
type prepared struct {
	chat    *domainChat.Chat
	cfg     *domainChat.GenerationConfig
	sources []*domainChat.RetrievedSource
	prompt  []*domainChat.PromptMessage
}

// prepare 执行生成之前的全部阶段
// InvalidConfig 在任何网络调用之前返回；检索降级不报错
func (p *Pipeline) prepare(ctx context.Context, req *TurnRequest) (*prepared, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message must not be empty", domainChat.ErrInvalidConfig)
	}

	chat, err := p.chatRepo.GetChat(req.ChatID)
	if err != nil {
		return nil, err
	}
	bot, err := p.chatbotRepo.GetChatbot(chat.ChatbotID)
	if err != nil {
		return nil, err
	}
	cfg, err := domainChat.ResolveGenerationConfig(bot, req.Overrides)
	if err != nil {
		return nil, err
	}

	history, err := p.chatRepo.RecentMessages(req.ChatID, p.assembler.maxTurns)
	if err != nil {
		// 历史读取失败降级为空历史，不阻断生成
		p.logger.Warn("Failed to load chat history, continuing without",
			"chat_id", req.ChatID,
			"error", err,
		)
		history = nil
	}

	sources := p.coordinator.Retrieve(ctx, req.Message, chat.ChatbotID, chat.OrgID, cfg)
	prompt := p.assembler.Assemble(history, req.Message, sources, cfg)

	return &prepared{chat: chat, cfg: cfg, sources: sources, prompt: prompt}, nil
}

// Respond 阻塞式调用：返回一轮完整对话
// 持久化失败只记录日志：答案已经产生，历史持久性降级
// 不应该让用户看到错误
func (p *Pipeline) Respond(ctx context.Context, req *TurnRequest) (*domainChat.ConversationTurn, error) {
	prep, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, p.genTimeout)
	defer cancel()

	text, tokensUsed, err := p.generator.Generate(gctx, prep.prompt, prep.cfg)
	if err != nil {
		return nil, p.mapGenerationErr(err, gctx)
	}

	clean, escalated := StripMarker(text)
	turn := &domainChat.ConversationTurn{
		UserMessage:         req.Message,
		AssistantMessage:    clean,
		Sources:             prep.sources,
		EscalationRequested: escalated,
		TokensUsed:          p.resolveTokens(tokensUsed, clean),
	}
	if escalated {
		turn.EscalationReason = DefaultEscalationReason
	}

	if err := p.persister.Persist(req.ChatID, turn); err != nil {
		p.logger.Error("Turn persistence failed after successful generation",
			"chat_id", req.ChatID,
			"error", err,
		)
	}
	return turn, nil
}

// RespondStream 流式调用
// 返回惰性、有限、不可重启的事件序列。事件严格按生成顺序下发；
// 来源只随终止事件附带一次。生成失败表现为单个携带 Err 的终止
// 事件，此时不落任何部分消息。消费方取消 ctx 即提前终止：
// 底层生成调用随之取消，已累积的部分文本丢弃、不持久化
func (p *Pipeline) RespondStream(ctx context.Context, req *TurnRequest) (<-chan *domainChat.StreamEvent, error) {
	prep, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, p.genTimeout)

	raw, err := p.generator.GenerateStream(gctx, prep.prompt, prep.cfg)
	if err != nil {
		cancel()
		return nil, p.mapGenerationErr(err, gctx)
	}

	events := make(chan *domainChat.StreamEvent, 8)
	go func() {
		defer close(events)
		defer cancel()
		p.consumeStream(ctx, gctx, req, prep, raw, events)
	}()
	return events, nil
}

// consumeStream 消费原始分片流：过滤、下发、终止后落库
func (p *Pipeline) consumeStream(
	ctx, gctx context.Context,
	req *TurnRequest,
	prep *prepared,
	raw <-chan *domainChat.RawChunk,
	events chan<- *domainChat.StreamEvent,
) {
	filter := NewMarkerFilter()
	var full strings.Builder
	var (
		escalated  bool
		tokensUsed int
		terminated bool
	)

	for chunk := range raw {
		if chunk.Err != nil {
			// 流中途失败：不下发部分消息的落库，只给终止错误事件
			p.emit(ctx, events, &domainChat.StreamEvent{Err: p.mapGenerationErr(chunk.Err, gctx)})
			return
		}
		if chunk.Done {
			tokensUsed = chunk.TokensUsed
			terminated = true
			break
		}

		out, fired := filter.Feed(chunk.Content)
		full.WriteString(out)

		if fired {
			escalated = true
		}
		if out == "" && !fired {
			continue
		}
		ev := &domainChat.StreamEvent{Content: out}
		if fired {
			ev.EscalationRequested = true
			ev.EscalationReason = DefaultEscalationReason
		}
		if !p.emit(ctx, events, ev) {
			return // 消费方断开：丢弃部分文本，不落库
		}
	}

	if ctx.Err() != nil {
		return
	}
	if !terminated {
		// 通道在终止分片之前关闭：按生成失败处理
		p.emit(ctx, events, &domainChat.StreamEvent{Err: p.mapGenerationErr(domainChat.ErrGenerationFailed, gctx)})
		return
	}

	// 终止：放出扣留的尾部，附带来源和最终升级状态
	tail := filter.Flush()
	full.WriteString(tail)

	turn := &domainChat.ConversationTurn{
		UserMessage:         req.Message,
		AssistantMessage:    full.String(),
		Sources:             prep.sources,
		EscalationRequested: escalated,
		TokensUsed:          p.resolveTokens(tokensUsed, full.String()),
	}
	if escalated {
		turn.EscalationReason = DefaultEscalationReason
	}

	final := &domainChat.StreamEvent{
		Content:             tail,
		IsComplete:          true,
		Sources:             prep.sources,
		EscalationRequested: escalated,
		EscalationReason:    turn.EscalationReason,
		TokensUsed:          turn.TokensUsed,
	}
	if !p.emit(ctx, events, final) {
		return
	}

	if err := p.persister.Persist(req.ChatID, turn); err != nil {
		p.logger.Error("Turn persistence failed after completed stream",
			"chat_id", req.ChatID,
			"error", err,
		)
	}
}

// emit 向事件通道发送，消费方断开时返回 false
func (p *Pipeline) emit(ctx context.Context, events chan<- *domainChat.StreamEvent, ev *domainChat.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// mapGenerationErr 归一化生成错误：超时与提供商失败分开上报
func (p *Pipeline) mapGenerationErr(err error, gctx context.Context) error {
	if errors.Is(err, domainChat.ErrGenerationTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domainChat.ErrGenerationTimeout, err)
	}
	if errors.Is(err, domainChat.ErrGenerationFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", domainChat.ErrGenerationFailed, err)
}

// resolveTokens 提供商未附带用量时用本地计数估算
func (p *Pipeline) resolveTokens(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	if p.counter == nil {
		return 0
	}
	return p.counter.CountTokens(text)
}
