package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"log/slog"

	"github.com/answerdesk/backend/internal/domain/chat"
	"github.com/answerdesk/backend/internal/infrastructure/config"
	"github.com/answerdesk/backend/internal/infrastructure/log"
)

// Client LLM Chat 客户端
// 每次请求从配置管理器读取快照；超时由调用方通过 ctx 控制，
// httpClient 本身不设超时，避免截断长流式响应
type Client struct {
	configMgr  *config.Manager
	httpClient *http.Client
	logger     *slog.Logger
}

// ChatRequest Chat API 请求
type ChatRequest struct {
	Messages      []Message      `json:"messages"`
	Model         string         `json:"model,omitempty"`
	Temperature   float32        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// Message Chat 消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamOptions 流式请求选项
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse Chat API 响应
type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// streamChunk SSE 数据行反序列化结构
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// NewClient 创建 LLM 客户端
func NewClient(configMgr *config.Manager) *Client {
	return &Client{
		configMgr:  configMgr,
		httpClient: &http.Client{},
		logger:     log.NewModuleLogger("llm", "client"),
	}
}

// newRequest 构造 chat/completions 请求
func (c *Client) newRequest(ctx context.Context, prompt []*chat.PromptMessage, genCfg *chat.GenerationConfig, stream bool) (*http.Request, error) {
	cfg := c.configMgr.Snapshot().LLM
	if cfg.URL == "" {
		return nil, fmt.Errorf("LLM API URL not configured")
	}

	messages := make([]Message, len(prompt))
	for i, m := range prompt {
		messages[i] = Message{Role: m.Role, Content: m.Content}
	}

	reqBody := ChatRequest{
		Messages:    messages,
		Model:       cfg.Model,
		Temperature: genCfg.Temperature,
		MaxTokens:   genCfg.MaxTokens,
		Stream:      stream,
	}
	if stream {
		reqBody.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(cfg.URL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))
	return req, nil
}

// Generate 阻塞式生成，返回完整文本和 token 用量
func (c *Client) Generate(ctx context.Context, prompt []*chat.PromptMessage, genCfg *chat.GenerationConfig) (string, int, error) {
	req, err := c.newRequest(ctx, prompt, genCfg, false)
	if err != nil {
		return "", 0, err
	}

	c.logger.Debug("Sending LLM request",
		"messages", len(prompt),
		"max_tokens", genCfg.MaxTokens,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("LLM API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", 0, fmt.Errorf("failed to decode LLM response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", 0, fmt.Errorf("LLM API returned no choices")
	}

	c.logger.Info("LLM generation completed",
		"model", chatResp.Model,
		"tokens", chatResp.Usage.TotalTokens,
	)

	return chatResp.Choices[0].Message.Content, chatResp.Usage.TotalTokens, nil
}

// GenerateStream 流式生成
// 请求建立失败同步返回错误；流中途失败表现为携带 Err 的分片。
// 正常结束时最后发送 Done 分片（带用量），随后关闭通道
func (c *Client) GenerateStream(ctx context.Context, prompt []*chat.PromptMessage, genCfg *chat.GenerationConfig) (<-chan *chat.RawChunk, error) {
	req, err := c.newRequest(ctx, prompt, genCfg, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("LLM API request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(body))
	}

	chunks := make(chan *chat.RawChunk, 8)
	go c.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

// readStream 按行解析 SSE 流
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- *chat.RawChunk) {
	defer close(chunks)
	defer body.Close()

	var tokensUsed int
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if data == "[DONE]" {
			c.send(ctx, chunks, &chat.RawChunk{Done: true, TokensUsed: tokensUsed})
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// 跳过无法解析的行，和未知 SSE 注释行同等对待
			c.logger.Warn("Skipping malformed stream line", "error", err)
			continue
		}

		if chunk.Usage != nil {
			tokensUsed = chunk.Usage.TotalTokens
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if !c.send(ctx, chunks, &chat.RawChunk{Content: content}) {
				return
			}
		}
	}

	// 扫描结束但没有 [DONE]：连接被掐断或上游异常
	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("stream ended without terminal event")
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	c.send(ctx, chunks, &chat.RawChunk{Err: err})
}

// send 发送分片，消费方已取消时返回 false
func (c *Client) send(ctx context.Context, chunks chan<- *chat.RawChunk, chunk *chat.RawChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// TestConnection 测试 LLM API 连接
func (c *Client) TestConnection(ctx context.Context) error {
	genCfg := &chat.GenerationConfig{MaxTokens: 16}
	prompt := []*chat.PromptMessage{
		{Role: chat.RoleUser, Content: "Reply with OK."},
	}

	_, _, err := c.Generate(ctx, prompt, genCfg)
	if err != nil {
		c.logger.Error("LLM connection test failed", "error", err)
		return err
	}

	c.logger.Info("LLM connection test successful")
	return nil
}

// 编译时检查接口实现
var _ chat.Generator = (*Client)(nil)
