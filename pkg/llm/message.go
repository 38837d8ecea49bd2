package llm

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// 角色常量
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContentPart 是多模态消息中的一个片段（text 或 image_url）。
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL 承载图片地址，一般为 data URI。
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // low | high | auto
}

// TextPart 构造文本片段
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart 构造图片片段
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// ImageDataURI 把图片字节编码为 data:image/<ext>;base64,... 形式。
func ImageDataURI(ext string, data []byte) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "png"
	}
	return "data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Message 表示一条角色消息。Parts 非空时以内容数组发送，否则发送字符串 Content。
type Message struct {
	Role       string
	Content    string
	Parts      []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
}

type wireMessage struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// MarshalJSON 按 chat completions 的消息格式序列化。
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID}
	switch {
	case len(m.Parts) > 0:
		w.Content = m.Parts
	case m.Content == "" && len(m.ToolCalls) > 0:
		// 只带 tool_calls 的 assistant 消息省略 content
	default:
		w.Content = m.Content
	}
	return json.Marshal(w)
}

// Tool 声明一个可供模型调用的函数工具。
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef 描述函数名称、用途和 JSON Schema 参数。
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall 是模型发起的一次完整的函数调用。
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall 携带函数名与 JSON 编码的参数。
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallDelta 是流式响应中的一段工具调用增量，按 Index 归并。
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// MaxToolCalls 是单次响应中接受的最多工具调用数，index 超出范围的增量被丢弃。
const MaxToolCalls = 64

// MergeToolCalls 把一批增量合并进已有的调用列表。
// ID、类型和名称以首次出现的非空值为准，参数按到达顺序拼接。
func MergeToolCalls(calls []ToolCall, deltas []ToolCallDelta) []ToolCall {
	for _, d := range deltas {
		if d.Index < 0 || d.Index >= MaxToolCalls {
			continue
		}
		for len(calls) <= d.Index {
			calls = append(calls, ToolCall{Type: "function"})
		}
		c := &calls[d.Index]
		if d.ID != "" && c.ID == "" {
			c.ID = d.ID
		}
		if d.Type != "" {
			c.Type = d.Type
		}
		if d.Function.Name != "" && c.Function.Name == "" {
			c.Function.Name = d.Function.Name
		}
		c.Function.Arguments += d.Function.Arguments
	}
	return calls
}
