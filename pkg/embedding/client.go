// Package embedding 提供 OpenAI 兼容的向量化客户端。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/pkg/log"
)

// ErrEmptyEmbedding 表示接口返回了空向量。
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// Client 把一段文本转换为向量。
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// BatchClient 支持一次请求转换多段文本。
type BatchClient interface {
	Client
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// maxBatch 是单次请求携带的最大文本数。
const maxBatch = 64

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient 创建 OpenAI 兼容的 embedding 客户端，返回值同时实现 BatchClient。
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CreateEmbeddings 按 maxBatch 分批请求，结果顺序与 texts 一致。
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *openAICompatibleClient) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBytes, err := json.Marshal(embeddingRequest{
		Model:      c.cfg.Model,
		Input:      inputs,
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: want %d vectors, got %d", ErrEmptyEmbedding, len(inputs), len(parsed.Data))
	}
	vecs := make([][]float32, len(inputs))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(inputs) || vecs[idx] != nil {
			idx = i // 部分兼容服务不返回 index
		}
		if len(d.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vecs[idx] = d.Embedding
	}

	log.Debugw("[EmbeddingClient] 获取向量成功",
		"model", c.cfg.Model, "inputs", len(inputs),
		"dims", len(vecs[0]), "elapsed", time.Since(start))
	return vecs, nil
}

// Batch 用 BatchClient 一次转换 texts，不支持批量的客户端逐条调用。
func Batch(ctx context.Context, c Client, texts []string) ([][]float32, error) {
	if bc, ok := c.(BatchClient); ok {
		return bc.CreateEmbeddings(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := c.CreateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
