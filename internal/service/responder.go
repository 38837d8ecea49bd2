package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/llm"
	"hotel-rag-go/pkg/log"
	"hotel-rag-go/pkg/metrics"
)

// ResponderConfig 配置回答生成。
type ResponderConfig struct {
	Model         string
	Directive     string
	Params        *llm.GenerationParams
	MaxToolRounds int
	Buffer        int
}

// Responder 基于检索到的酒店上下文流式生成回答。
type Responder struct {
	llm     llm.Client
	tools   *ToolRegistry
	cfg     ResponderConfig
	metrics *metrics.Metrics
}

// NewResponder 创建 Responder。tools 为 nil 时不向模型声明任何工具。
func NewResponder(client llm.Client, tools *ToolRegistry, cfg ResponderConfig, m *metrics.Metrics) *Responder {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 5
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Responder{llm: client, tools: tools, cfg: cfg, metrics: m}
}

// BuildPrompt 生成唯一的 system 消息：指令、上下文（JSON 数组）、历史和独立问题。
func BuildPrompt(directive, query string, history *model.ChatHistory, hotels []model.Hotel) string {
	if hotels == nil {
		hotels = []model.Hotel{}
	}
	ctxJSON, err := json.Marshal(hotels)
	if err != nil {
		ctxJSON = []byte("[]")
	}
	rendered := ""
	if history != nil {
		rendered = history.RenderConversation()
	}

	var sb strings.Builder
	sb.WriteString(directive)
	sb.WriteString("\n\ncontext: ")
	sb.Write(ctxJSON)
	sb.WriteString("\n\nchat history:\n")
	sb.WriteString(rendered)
	sb.WriteString("\n\nuser: ")
	sb.WriteString(query)
	return sb.String()
}

// Respond 启动流式生成并立即返回分块通道。通道的最后一个元素总是 Done 标记。
// ctx 取消会中止对模型的请求。
func (r *Responder) Respond(ctx context.Context, query string, history *model.ChatHistory, hotels []model.Hotel) <-chan Fragment {
	out := make(chan Fragment, r.cfg.Buffer)
	messages := []llm.Message{{Role: llm.RoleSystem, Content: BuildPrompt(r.cfg.Directive, query, history, hotels)}}
	go func() {
		defer close(out)
		err := r.run(ctx, messages, out)
		out <- Fragment{Done: true, Err: err}
	}()
	return out
}

func (r *Responder) run(ctx context.Context, messages []llm.Message, out chan<- Fragment) error {
	tools := r.tools.Definitions()
	for round := 0; ; round++ {
		calls, err := r.streamOnce(ctx, llm.ChatRequest{
			Model:    r.cfg.Model,
			Messages: messages,
			Tools:    tools,
			Params:   r.cfg.Params,
		}, out)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}
		if round >= r.cfg.MaxToolRounds {
			log.Warnw("[Responder] 工具调用轮次超过上限", "rounds", round, "max", r.cfg.MaxToolRounds)
			return ErrToolLoopExceeded
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
		for _, call := range calls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    r.invoke(ctx, call),
			})
		}
	}
}

// streamOnce 消费一次流式响应，转发文本分块并返回合并后的工具调用。
func (r *Responder) streamOnce(ctx context.Context, req llm.ChatRequest, out chan<- Fragment) ([]llm.ToolCall, error) {
	stream, err := r.llm.Stream(ctx, req)
	if err != nil {
		return nil, classify(err, ErrCompletion)
	}
	defer stream.Close()

	var calls []llm.ToolCall
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return calls, nil
		}
		if err != nil {
			return nil, classify(err, ErrCompletion)
		}
		if chunk.Content != "" {
			select {
			case out <- Fragment{Text: chunk.Content}:
			case <-ctx.Done():
				return nil, classify(ctx.Err(), ErrCompletion)
			}
		}
		calls = llm.MergeToolCalls(calls, chunk.ToolCalls)
	}
}

// invoke 执行一次工具调用。失败时把错误作为工具结果交还模型。
func (r *Responder) invoke(ctx context.Context, call llm.ToolCall) string {
	name := call.Function.Name
	start := time.Now()
	result, err := r.tools.Invoke(ctx, name, call.Function.Arguments)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrUnknownTool) {
			status = "unknown"
		}
		r.metrics.ToolCalled(name, status)
		log.Warnw("[Responder] 工具调用失败", "tool", name, "error", err)
		b, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(b)
	}
	r.metrics.ToolCalled(name, "ok")
	log.Infow("[Responder] 工具调用完成", "tool", name, "elapsed", time.Since(start))
	return result
}
