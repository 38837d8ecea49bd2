// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotel-rag-go/internal/middleware"
	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ImagePresigner 为已存储的图片生成临时访问地址，*storage.MinIOImageStore 满足该接口。
type ImagePresigner interface {
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ConversationHandler 处理与会话历史和归档相关的 API 请求。
type ConversationHandler struct {
	history       *service.HistoryService
	conversations repository.ConversationRepository
	presigner     ImagePresigner
}

// NewConversationHandler 创建一个新的 ConversationHandler。conversations 和 presigner 可以为 nil。
func NewConversationHandler(history *service.HistoryService, conversations repository.ConversationRepository, presigner ImagePresigner) *ConversationHandler {
	return &ConversationHandler{history: history, conversations: conversations, presigner: presigner}
}

type partView struct {
	Type     model.PartType `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageRef string         `json:"image_ref,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
}

type messageView struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Parts     []partView `json:"parts"`
	Timestamp time.Time  `json:"timestamp"`
}

// GetHistory 处理 GET /api/v1/sessions/:id/history。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	sessionID := c.Param("id")
	history, err := h.history.Get(c.Request.Context(), sessionID)
	if err != nil {
		log.Errorw("[ConversationHandler] 读取会话历史失败", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Failed to retrieve conversation history", "data": nil})
		return
	}
	if history == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}
	if claims := middleware.Claims(c); claims != nil && history.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权访问该会话", "data": nil})
		return
	}

	messages := make([]messageView, 0, len(history.Messages))
	for _, m := range history.Conversation() {
		messages = append(messages, h.view(c.Request.Context(), m))
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"session_id": history.SessionID,
			"user_id":    history.UserID,
			"messages":   messages,
		},
	})
}

func (h *ConversationHandler) view(ctx context.Context, m model.Message) messageView {
	v := messageView{Role: m.Role, Content: m.Content(), Timestamp: m.Timestamp, Parts: make([]partView, 0, len(m.Parts))}
	for _, p := range m.Parts {
		pv := partView{Type: p.Type, Text: p.Text, ImageRef: p.ImageRef}
		if p.Type == model.PartImage && h.presigner != nil && !strings.HasPrefix(p.ImageRef, "inline:") {
			url, err := h.presigner.PresignedURL(ctx, p.ImageRef, time.Hour)
			if err != nil {
				log.Warnw("[ConversationHandler] 生成图片地址失败", "image_ref", p.ImageRef, "error", err)
			} else {
				pv.ImageURL = url
			}
		}
		v.Parts = append(v.Parts, pv)
	}
	return v
}

// GetArchive 处理 GET /api/v1/sessions/:id/conversations，返回 MySQL 中归档的问答。
func (h *ConversationHandler) GetArchive(c *gin.Context) {
	if h.conversations == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "未启用会话归档", "data": nil})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	convs, err := h.conversations.FindBySession(c.Param("id"), limit)
	if err != nil {
		log.Errorw("[ConversationHandler] 读取归档失败", "session_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Failed to retrieve archived conversations", "data": nil})
		return
	}
	if claims := middleware.Claims(c); claims != nil {
		owned := convs[:0]
		for _, conv := range convs {
			if conv.UserID == claims.UserID {
				owned = append(owned, conv)
			}
		}
		convs = owned
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": convs})
}
