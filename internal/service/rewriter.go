package service

import (
	"context"
	"path"
	"strings"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/llm"
)

// NoResponseSentinel 在模型没有返回内容时代替改写结果。
const NoResponseSentinel = "Nothing has responded."

const imageInstruction = `Describe this picture and create a question to be a stand alone question.
The stand alone question will be used to suggest a hotel based on the image.`

// ImageInput 是用户上传的一张图片。Ref 为存储后的引用，写入会话历史。
type ImageInput struct {
	Filename string
	Data     []byte
	Ref      string
}

// Ext 返回小写的扩展名（不含点），默认 png。
func (img *ImageInput) Ext() string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(img.Filename), "."))
	if ext == "" {
		return "png"
	}
	return ext
}

// Turn 是一次用户输入：文本或图片，二者只能有其一。
type Turn struct {
	Prompt string
	Image  *ImageInput
}

// Validate 检查恰好提供了文本或图片之一。
func (t Turn) Validate() error {
	hasPrompt := strings.TrimSpace(t.Prompt) != ""
	hasImage := t.Image != nil && len(t.Image.Data) > 0
	if hasPrompt == hasImage {
		return ErrClientInput
	}
	return nil
}

// RewriterConfig 配置改写所用的模型和提示。
type RewriterConfig struct {
	Model          string
	VisionModel    string
	Directive      string
	ImageDirective string
	Params         *llm.GenerationParams
}

// Rewriter 把会话历史和新输入合并成一个独立的问题。
type Rewriter struct {
	llm llm.Client
	cfg RewriterConfig
}

func NewRewriter(client llm.Client, cfg RewriterConfig) *Rewriter {
	return &Rewriter{llm: client, cfg: cfg}
}

// Rewrite 只调用一次补全接口，不修改 history。
func (r *Rewriter) Rewrite(ctx context.Context, turn Turn, history *model.ChatHistory) (string, error) {
	if err := turn.Validate(); err != nil {
		return "", err
	}
	rendered := ""
	if history != nil {
		rendered = history.RenderConversation()
	}

	var req llm.ChatRequest
	if turn.Image != nil {
		if r.cfg.VisionModel == "" {
			return "", ErrVisionUnsupported
		}
		uri := llm.ImageDataURI(turn.Image.Ext(), turn.Image.Data)
		image := llm.ImagePart(uri)
		image.ImageURL.Detail = "high"
		req = llm.ChatRequest{
			Model: r.cfg.VisionModel,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: imageSystemMessage(r.cfg.ImageDirective, rendered)},
				{Role: llm.RoleUser, Parts: []llm.ContentPart{llm.TextPart(imageInstruction), image}},
			},
			Params: r.cfg.Params,
		}
	} else {
		req = llm.ChatRequest{
			Model:    r.cfg.Model,
			Messages: []llm.Message{{Role: llm.RoleSystem, Content: standaloneSystemMessage(r.cfg.Directive, rendered, turn.Prompt)}},
			Params:   r.cfg.Params,
		}
	}

	out, err := r.llm.Complete(ctx, req)
	if err != nil {
		return "", classify(err, ErrCompletion)
	}
	if strings.TrimSpace(out) == "" {
		return NoResponseSentinel, nil
	}
	return out, nil
}

func standaloneSystemMessage(directive, history, prompt string) string {
	var sb strings.Builder
	sb.WriteString(directive)
	sb.WriteString("\n\nchat history:\n")
	sb.WriteString(history)
	sb.WriteString("\n\nfollow up question: ")
	sb.WriteString(prompt)
	sb.WriteString("\nstandalone question:")
	return sb.String()
}

func imageSystemMessage(directive, history string) string {
	return directive + "\n\nchat history:\n" + history
}
