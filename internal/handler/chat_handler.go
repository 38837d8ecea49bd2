// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hotel-rag-go/internal/middleware"
	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultMaxImageBytes 是未配置时允许的最大图片大小。
const DefaultMaxImageBytes = 10 << 20

// ChatHandler 负责处理聊天请求：SSE 和 WebSocket 两种传输。
type ChatHandler struct {
	chatService   service.ChatService
	tokens        TokenVerifier
	maxImageBytes int64
}

// NewChatHandler 创建一个新的 ChatHandler。tokens 为 nil 时 websocket 不校验路径中的 token。
func NewChatHandler(chatService service.ChatService, tokens TokenVerifier, maxImageBytes int64) *ChatHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &ChatHandler{chatService: chatService, tokens: tokens, maxImageBytes: maxImageBytes}
}

type chatJSONRequest struct {
	SessionID   string          `json:"session_id"`
	Prompt      string          `json:"prompt"`
	ChatHistory []model.Message `json:"chat_history"`
	// Image 为 base64 编码的图片内容
	Image     string `json:"image"`
	ImageName string `json:"image_name"`
}

// Chat 处理 POST /api/v1/chat，以 text/event-stream 流式返回回答。
func (h *ChatHandler) Chat(c *gin.Context) {
	req, err := h.bindChatRequest(c)
	if err != nil {
		log.Warnw("[ChatHandler] 请求参数无效", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	c.Header(middleware.SessionHeader, req.SessionID)

	started := false
	writer := service.ChunkWriterFunc(func(text string) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Status(http.StatusOK)
		}
		c.SSEvent("message", text)
		c.Writer.Flush()
		return nil
	})

	res, err := h.chatService.Answer(c.Request.Context(), req, writer)
	if err != nil {
		status, msg := StatusFor(err)
		if !started {
			c.JSON(status, gin.H{"code": status, "message": msg, "data": gin.H{"session_id": req.SessionID}})
			return
		}
		c.SSEvent("error", gin.H{"code": status, "message": msg})
		c.Writer.Flush()
		return
	}

	if !started {
		// 空回答也以事件流结束
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Status(http.StatusOK)
	}
	c.SSEvent("done", gin.H{
		"session_id":          res.SessionID,
		"standalone_question": res.Standalone,
		"persisted":           res.Persisted,
		"image_ref":           res.ImageRef,
	})
	c.Writer.Flush()
}

// bindChatRequest 解析 multipart 或 JSON 请求体。
func (h *ChatHandler) bindChatRequest(c *gin.Context) (service.ChatRequest, error) {
	req := service.ChatRequest{
		SessionID: strings.TrimSpace(c.GetHeader(middleware.SessionHeader)),
		UserID:    middleware.UserID(c),
	}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		req.Prompt = c.PostForm("prompt")
		if raw := c.PostForm("chat_history"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.History); err != nil {
				return req, fmt.Errorf("chat_history 格式错误: %w", err)
			}
		}
		if fh, err := c.FormFile("file"); err == nil {
			if fh.Size > h.maxImageBytes {
				return req, fmt.Errorf("图片大小超过限制 %d 字节", h.maxImageBytes)
			}
			f, err := fh.Open()
			if err != nil {
				return req, fmt.Errorf("读取图片失败: %w", err)
			}
			data, err := io.ReadAll(io.LimitReader(f, h.maxImageBytes+1))
			f.Close()
			if err != nil {
				return req, fmt.Errorf("读取图片失败: %w", err)
			}
			req.Image = &service.ImageInput{Filename: fh.Filename, Data: data}
		} else if !errors.Is(err, http.ErrMissingFile) {
			return req, fmt.Errorf("读取图片失败: %w", err)
		}
	} else {
		var body chatJSONRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			return req, fmt.Errorf("请求体格式错误: %w", err)
		}
		req.Prompt = body.Prompt
		req.History = body.ChatHistory
		if req.SessionID == "" {
			req.SessionID = body.SessionID
		}
		if body.Image != "" {
			data, err := base64.StdEncoding.DecodeString(body.Image)
			if err != nil {
				return req, fmt.Errorf("image 不是合法的 base64: %w", err)
			}
			name := body.ImageName
			if name == "" {
				name = "image.png"
			}
			req.Image = &service.ImageInput{Filename: name, Data: data}
		}
	}

	if req.Image != nil && int64(len(req.Image.Data)) > h.maxImageBytes {
		return req, fmt.Errorf("图片大小超过限制 %d 字节", h.maxImageBytes)
	}
	// 与服务层一致：恰好一个输入
	if err := (service.Turn{Prompt: req.Prompt, Image: req.Image}).Validate(); err != nil {
		return req, err
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return req, nil
}

// StatusFor 把服务层错误映射为 HTTP 状态码和对外展示的消息。
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrClientInput), errors.Is(err, service.ErrVisionUnsupported):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrSessionForbidden):
		return http.StatusForbidden, "无权访问该会话"
	case errors.Is(err, service.ErrTimeout):
		return http.StatusGatewayTimeout, "上游服务超时，请稍后重试"
	case errors.Is(err, service.ErrCompletion), errors.Is(err, service.ErrRetrieval), errors.Is(err, service.ErrToolLoopExceeded):
		return http.StatusBadGateway, "AI服务暂时不可用，请稍后重试"
	case errors.Is(err, service.ErrStreamInterrupted), errors.Is(err, service.ErrCanceled):
		return 499, "客户端已断开"
	}
	return http.StatusInternalServerError, "服务器内部错误"
}
