package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainChat "github.com/answerdesk/backend/internal/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatRepo 内存会话仓库桩
type fakeChatRepo struct {
	chats       map[string]*domainChat.Chat
	messages    map[string][]*domainChat.Message
	appendErr   error
	appendCalls int
	historyErr  error
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		chats:    make(map[string]*domainChat.Chat),
		messages: make(map[string][]*domainChat.Message),
	}
}

func (f *fakeChatRepo) CreateChat(chat *domainChat.Chat) error {
	f.chats[chat.ID] = chat
	return nil
}

func (f *fakeChatRepo) GetChat(chatID string) (*domainChat.Chat, error) {
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, domainChat.ErrChatNotFound
	}
	return chat, nil
}

func (f *fakeChatRepo) AppendTurn(chatID string, userMsg, assistantMsg *domainChat.Message) error {
	f.appendCalls++
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages[chatID] = append(f.messages[chatID], userMsg, assistantMsg)
	return nil
}

func (f *fakeChatRepo) RecentMessages(chatID string, limit int) ([]*domainChat.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	msgs := f.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// fakeChatbotRepo 机器人仓库桩
type fakeChatbotRepo struct {
	bots map[string]*domainChat.Chatbot
}

func (f *fakeChatbotRepo) GetChatbot(id string) (*domainChat.Chatbot, error) {
	bot, ok := f.bots[id]
	if !ok {
		return nil, domainChat.ErrChatbotNotFound
	}
	return bot, nil
}

func (f *fakeChatbotRepo) SaveChatbot(bot *domainChat.Chatbot) error {
	f.bots[bot.ID] = bot
	return nil
}

// fakeGenerator 可编程的生成后端桩
type fakeGenerator struct {
	text      string
	tokens    int
	err       error
	chunks    []string // 流式分片（按给定边界下发）
	streamErr error    // 流中途错误（在全部 chunks 之后）
	delay     time.Duration
	gotPrompt []*domainChat.PromptMessage
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt []*domainChat.PromptMessage, cfg *domainChat.GenerationConfig) (string, int, error) {
	f.gotPrompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.tokens, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt []*domainChat.PromptMessage, cfg *domainChat.GenerationConfig) (<-chan *domainChat.RawChunk, error) {
	f.gotPrompt = prompt
	out := make(chan *domainChat.RawChunk)
	go func() {
		defer close(out)
		for _, c := range f.chunks {
			select {
			case out <- &domainChat.RawChunk{Content: c}:
			case <-ctx.Done():
				return
			}
		}
		if f.streamErr != nil {
			select {
			case out <- &domainChat.RawChunk{Err: f.streamErr}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- &domainChat.RawChunk{Done: true, TokensUsed: f.tokens}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// newTestPipeline 组装一个全桩管线
func newTestPipeline(gen *fakeGenerator, docs, blocks domainChat.VectorIndex) (*Pipeline, *fakeChatRepo) {
	chatRepo := newFakeChatRepo()
	chatRepo.chats["chat-1"] = &domainChat.Chat{ID: "chat-1", ChatbotID: "bot-1", OrgID: "org-1"}

	botRepo := &fakeChatbotRepo{bots: map[string]*domainChat.Chatbot{
		"bot-1": testBotForPipeline(),
	}}

	coordinator := NewRetrievalCoordinator(docs, blocks, time.Second)
	assembler := NewPromptAssembler(wordCounter{}, 10, 100000)
	persister := NewTurnPersister(chatRepo)

	return NewPipeline(chatRepo, botRepo, coordinator, assembler, gen, persister, wordCounter{}, GenerationTimeout(5*time.Second)), chatRepo
}

func testBotForPipeline() *domainChat.Chatbot {
	return &domainChat.Chatbot{
		ID:                   "bot-1",
		OrgID:                "org-1",
		Name:                 "support",
		Temperature:          0.3,
		MaxTokens:            512,
		MaxSources:           5,
		IncludeOrgDocs:       true,
		IncludeContextBlocks: true,
	}
}

// TestRespond_ScenarioA 场景 A：双索引零结果，生成照常进行且无 Context 段
func TestRespond_ScenarioA(t *testing.T) {
	gen := &fakeGenerator{text: "We are open 9am to 5pm.", tokens: 12}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	turn, err := p.Respond(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "What are your support hours?"})

	require.NoError(t, err)
	assert.Equal(t, "We are open 9am to 5pm.", turn.AssistantMessage)
	assert.Empty(t, turn.Sources)
	assert.False(t, turn.EscalationRequested)
	assert.Equal(t, 12, turn.TokensUsed)

	// 提示中没有 Context 段
	for _, msg := range gen.gotPrompt {
		assert.NotContains(t, msg.Content, "Context:")
	}

	// 一轮对话恰好落库一次（两条消息）
	assert.Equal(t, 1, repo.appendCalls)
	assert.Len(t, repo.messages["chat-1"], 2)
}

// TestRespond_BlockingEscalation 阻塞模式下标记被剥离且升级置位
func TestRespond_BlockingEscalation(t *testing.T) {
	gen := &fakeGenerator{text: "I understand. " + EscalationMarker + " Connecting you now."}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	turn, err := p.Respond(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "I want to speak to a human"})

	require.NoError(t, err)
	assert.Equal(t, "I understand.  Connecting you now.", turn.AssistantMessage)
	assert.True(t, turn.EscalationRequested)
	assert.Equal(t, DefaultEscalationReason, turn.EscalationReason)

	// 落库的助手消息同样不含标记
	saved := repo.messages["chat-1"][1]
	assert.NotContains(t, saved.Content, EscalationMarker)
	assert.True(t, saved.EscalationFlagged)
}

// TestRespond_WithSources 来源进入提示并随结果返回
func TestRespond_WithSources(t *testing.T) {
	blocks := &fakeIndex{results: []*domainChat.RetrievedSource{
		src("b1", domainChat.SourceTypeContextBlock, 0.9),
	}}
	gen := &fakeGenerator{text: "answer"}
	p, _ := newTestPipeline(gen, &fakeIndex{}, blocks)

	turn, err := p.Respond(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})

	require.NoError(t, err)
	require.Len(t, turn.Sources, 1)
	assert.Equal(t, "b1", turn.Sources[0].ID)

	// Context 段出现在系统段之后
	require.GreaterOrEqual(t, len(gen.gotPrompt), 3)
	assert.Contains(t, gen.gotPrompt[1].Content, "t-b1")
}

// TestRespond_ScenarioC 场景 C：生成超时后没有任何落库
func TestRespond_ScenarioC(t *testing.T) {
	gen := &fakeGenerator{delay: time.Second}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})
	p.genTimeout = 30 * time.Millisecond

	_, err := p.Respond(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})

	assert.ErrorIs(t, err, domainChat.ErrGenerationTimeout)
	assert.Zero(t, repo.appendCalls)
}

// TestRespond_ScenarioD 场景 D：落库失败不影响已生成的答案
func TestRespond_ScenarioD(t *testing.T) {
	gen := &fakeGenerator{text: "the answer"}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})
	repo.appendErr = errors.New("disk full")

	turn, err := p.Respond(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})

	require.NoError(t, err)
	assert.Equal(t, "the answer", turn.AssistantMessage)
	assert.Equal(t, 1, repo.appendCalls)
}

// TestRespond_InvalidConfigBeforeNetwork 非法配置在生成之前报错
func TestRespond_InvalidConfigBeforeNetwork(t *testing.T) {
	gen := &fakeGenerator{text: "never"}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	zero := 0
	_, err := p.Respond(context.Background(), &TurnRequest{
		ChatID:    "chat-1",
		Message:   "q",
		Overrides: &domainChat.GenerationOverrides{MaxTokens: &zero},
	})

	assert.ErrorIs(t, err, domainChat.ErrInvalidConfig)
	assert.Nil(t, gen.gotPrompt)
	assert.Zero(t, repo.appendCalls)
}

// TestRespond_UnknownChat 未知会话报错
func TestRespond_UnknownChat(t *testing.T) {
	p, _ := newTestPipeline(&fakeGenerator{}, &fakeIndex{}, &fakeIndex{})

	_, err := p.Respond(context.Background(), &TurnRequest{ChatID: "missing", Message: "q"})

	assert.ErrorIs(t, err, domainChat.ErrChatNotFound)
}

// collectEvents 读空事件通道
func collectEvents(ch <-chan *domainChat.StreamEvent) []*domainChat.StreamEvent {
	var events []*domainChat.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

// TestRespondStream_ScenarioB 场景 B：标记跨分片切分仍被剥离且升级只触发一次
func TestRespondStream_ScenarioB(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{
		"I understand. [ESCALATION_",
		"REQUESTED] Connecting you now.",
	}}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	ch, err := p.RespondStream(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "I want to speak to a human"})
	require.NoError(t, err)

	events := collectEvents(ch)
	require.NotEmpty(t, events)

	var visible strings.Builder
	escalations := 0
	for _, ev := range events {
		require.NoError(t, ev.Err)
		visible.WriteString(ev.Content)
		if ev.EscalationRequested && !ev.IsComplete {
			escalations++
		}
	}

	assert.Equal(t, "I understand.  Connecting you now.", visible.String())
	assert.Equal(t, 1, escalations)

	final := events[len(events)-1]
	assert.True(t, final.IsComplete)
	assert.True(t, final.EscalationRequested)

	// 终止后恰好落库一次，全文不含标记
	assert.Equal(t, 1, repo.appendCalls)
	saved := repo.messages["chat-1"][1]
	assert.Equal(t, "I understand.  Connecting you now.", saved.Content)
	assert.True(t, saved.EscalationFlagged)
}

// TestRespondStream_SourcesOnTerminalEvent 来源只随终止事件附带一次
func TestRespondStream_SourcesOnTerminalEvent(t *testing.T) {
	blocks := &fakeIndex{results: []*domainChat.RetrievedSource{
		src("b1", domainChat.SourceTypeContextBlock, 0.9),
	}}
	gen := &fakeGenerator{chunks: []string{"hello ", "world"}}
	p, _ := newTestPipeline(gen, &fakeIndex{}, blocks)

	ch, err := p.RespondStream(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})
	require.NoError(t, err)

	events := collectEvents(ch)
	require.NotEmpty(t, events)

	for _, ev := range events[:len(events)-1] {
		assert.Nil(t, ev.Sources)
		assert.False(t, ev.IsComplete)
	}
	final := events[len(events)-1]
	assert.True(t, final.IsComplete)
	require.Len(t, final.Sources, 1)
	assert.Equal(t, "b1", final.Sources[0].ID)
}

// TestRespondStream_PassThroughOrder 无标记流按序透传
func TestRespondStream_PassThroughOrder(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"a", "b", "c"}}
	p, _ := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	ch, err := p.RespondStream(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})
	require.NoError(t, err)

	events := collectEvents(ch)
	var visible strings.Builder
	for _, ev := range events {
		visible.WriteString(ev.Content)
	}
	assert.Equal(t, "abc", visible.String())
}

// TestRespondStream_MidStreamFailure 流中途失败：终止错误事件且不落库
func TestRespondStream_MidStreamFailure(t *testing.T) {
	gen := &fakeGenerator{
		chunks:    []string{"partial "},
		streamErr: errors.New("connection reset"),
	}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	ch, err := p.RespondStream(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})
	require.NoError(t, err)

	events := collectEvents(ch)
	require.NotEmpty(t, events)

	final := events[len(events)-1]
	assert.ErrorIs(t, final.Err, domainChat.ErrGenerationFailed)
	assert.Zero(t, repo.appendCalls)
}

// TestRespondStream_ConsumerDisconnect 消费方断开：生成取消且不落库
func TestRespondStream_ConsumerDisconnect(t *testing.T) {
	chunks := make([]string, 100)
	for i := range chunks {
		chunks[i] = "x"
	}
	gen := &fakeGenerator{chunks: chunks}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.RespondStream(ctx, &TurnRequest{ChatID: "chat-1", Message: "q"})
	require.NoError(t, err)

	// 读两个事件后断开
	<-ch
	<-ch
	cancel()

	// 通道最终关闭
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Zero(t, repo.appendCalls)
				return
			}
		case <-deadline:
			t.Fatal("stream did not terminate after consumer disconnect")
		}
	}
}

// TestRespondStream_HistoryDegradation 历史读取失败降级为空历史
func TestRespondStream_HistoryDegradation(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	p, repo := newTestPipeline(gen, &fakeIndex{}, &fakeIndex{})
	repo.historyErr = errors.New("table locked")

	ch, err := p.RespondStream(context.Background(), &TurnRequest{ChatID: "chat-1", Message: "q"})
	require.NoError(t, err)

	events := collectEvents(ch)
	final := events[len(events)-1]
	assert.True(t, final.IsComplete)
}
