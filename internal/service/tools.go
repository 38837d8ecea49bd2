package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/llm"
)

// Tool 是一个可供模型调用的能力。
type Tool interface {
	Definition() llm.Tool
	// Call 以模型给出的 JSON 参数执行，返回 JSON 结果。
	Call(ctx context.Context, arguments string) (string, error)
}

type typedTool[In any, Out any] struct {
	def     llm.Tool
	handler func(context.Context, In) (Out, error)
}

// NewTool 用类型化的处理函数声明工具，参数按 In 解码，结果按 JSON 编码。
func NewTool[In any, Out any](name, description string, schema json.RawMessage, handler func(context.Context, In) (Out, error)) Tool {
	return &typedTool[In, Out]{
		def: llm.Tool{
			Type:     "function",
			Function: llm.FunctionDef{Name: name, Description: description, Parameters: schema},
		},
		handler: handler,
	}
}

func (t *typedTool[In, Out]) Definition() llm.Tool { return t.def }

func (t *typedTool[In, Out]) Call(ctx context.Context, arguments string) (string, error) {
	var in In
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &in); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.def.Function.Name, err)
		}
	}
	out, err := t.handler(ctx, in)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode result of %s: %w", t.def.Function.Name, err)
	}
	return string(b), nil
}

// ToolRegistry 按名称保存工具。调用前先校验名称。
type ToolRegistry struct {
	tools map[string]Tool
}

func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *ToolRegistry) Register(t Tool) error {
	name := t.Definition().Function.Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Definitions 按名称排序返回所有工具声明。
func (r *ToolRegistry) Definitions() []llm.Tool {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

func (r *ToolRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.tools[name]
	return ok
}

// Invoke 执行名为 name 的工具，未注册时返回 ErrUnknownTool。
func (r *ToolRegistry) Invoke(ctx context.Context, name, arguments string) (string, error) {
	if !r.Has(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return r.tools[name].Call(ctx, arguments)
}

// HotelSearchArgs 是 hotel_search 工具的参数。
type HotelSearchArgs struct {
	Query string `json:"query"`
}

const hotelSearchSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "A standalone description of the hotel the customer is looking for."}
	},
	"required": ["query"]
}`

// HotelSearchTool 把 Retriever 的 hybrid 检索暴露为 hotel_search 工具。
func HotelSearchTool(retriever Retriever, k int) Tool {
	return NewTool("hotel_search",
		"Search the hotel knowledge base and return matching hotels with id, name, category, city, state and description.",
		json.RawMessage(hotelSearchSchema),
		func(ctx context.Context, args HotelSearchArgs) ([]model.Hotel, error) {
			if args.Query == "" {
				return nil, fmt.Errorf("hotel_search: query is required")
			}
			hotels, err := retriever.Search(ctx, model.RetrievalQuery{Text: args.Query, K: k, Mode: model.SearchHybrid})
			if err != nil {
				return nil, err
			}
			if hotels == nil {
				hotels = []model.Hotel{}
			}
			return hotels, nil
		})
}
