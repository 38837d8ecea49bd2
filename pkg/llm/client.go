// Package llm provides a client for OpenAI-compatible and Azure OpenAI chat completions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hotel-rag-go/internal/config"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 发起一次非流式调用，返回第一个 choice 的文本；没有内容时返回空串。
	Complete(ctx context.Context, req ChatRequest) (string, error)
	// Stream 发起流式调用，调用方负责 Close。
	Stream(ctx context.Context, req ChatRequest) (Stream, error)
}

// GenerationParams 控制生成行为，nil 字段不发送。
type GenerationParams struct {
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// ChatRequest 是一次聊天调用的输入。Model 在 Azure 模式下即部署名。
type ChatRequest struct {
	Model    string
	Messages []Message
	Tools    []Tool
	Params   *GenerationParams
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client. A non-empty APIVersion switches to Azure deployment routing.
func NewClient(cfg config.LLMConfig) Client {
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// DefaultParams 根据配置生成默认的采样参数，penalty 固定为 0。
func DefaultParams(gen config.LLMGenerationConfig, maxTokens int) *GenerationParams {
	t := gen.Temperature
	p := gen.TopP
	zero := 0.0
	params := &GenerationParams{Temperature: &t, TopP: &p, FrequencyPenalty: &zero, PresencePenalty: &zero}
	if maxTokens > 0 {
		params.MaxTokens = &maxTokens
	}
	return params
}

type chatRequest struct {
	Model            string    `json:"model,omitempty"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream"`
	Tools            []Tool    `json:"tools,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *out.Choices[0].Message.Content, nil
}

func (c *openAIClient) Stream(ctx context.Context, req ChatRequest) (Stream, error) {
	resp, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body), nil
}

func (c *openAIClient) do(ctx context.Context, req ChatRequest, stream bool) (*http.Response, error) {
	body := chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Tools:    req.Tools,
	}
	if p := req.Params; p != nil {
		body.Temperature = p.Temperature
		body.TopP = p.TopP
		body.MaxTokens = p.MaxTokens
		body.FrequencyPenalty = p.FrequencyPenalty
		body.PresencePenalty = p.PresencePenalty
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req.Model), bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIVersion != "" {
		httpReq.Header.Set("api-key", c.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}

func (c *openAIClient) endpoint(model string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if c.cfg.APIVersion == "" {
		return base + "/chat/completions"
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(model), url.QueryEscape(c.cfg.APIVersion))
}
