package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChatHistory 是一个会话的有序消息序列。第一条消息（如果存在）总是 system 消息。
type ChatHistory struct {
	SessionID string
	UserID    string
	Messages  []Message
}

// NewChatHistory 创建只包含一条 system 消息的新会话历史。
func NewChatHistory(sessionID, userID, systemMessage string) *ChatHistory {
	return &ChatHistory{
		SessionID: sessionID,
		UserID:    userID,
		Messages:  []Message{NewTextMessage(RoleSystem, systemMessage)},
	}
}

// SessionInfoSet 报告持久化所需的 session 与 user 是否都已设置。
func (h *ChatHistory) SessionInfoSet() bool {
	return h.SessionID != "" && h.UserID != ""
}

// AddUser 追加一条用户消息。
func (h *ChatHistory) AddUser(parts ...Part) {
	h.Messages = append(h.Messages, Message{Role: RoleUser, Parts: parts, Timestamp: time.Now().UTC()})
}

// AddAssistant 追加一条助手消息。
func (h *ChatHistory) AddAssistant(text string) {
	h.Messages = append(h.Messages, NewTextMessage(RoleAssistant, text))
}

// Append 追加客户端提供的消息，丢弃其中的 system 消息以保持首条 system 的不变量。
func (h *ChatHistory) Append(msgs ...Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}
		h.Messages = append(h.Messages, m)
	}
}

// Conversation 返回除 system 之外的消息。
func (h *ChatHistory) Conversation() []Message {
	out := make([]Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// RenderConversation 把对话渲染为以换行分隔的 "role: content"，空对话返回空串。
func (h *ChatHistory) RenderConversation() string {
	conv := h.Conversation()
	lines := make([]string, 0, len(conv))
	for _, m := range conv {
		lines = append(lines, m.Render())
	}
	return strings.Join(lines, "\n")
}

// Clone 返回深拷贝。
func (h *ChatHistory) Clone() *ChatHistory {
	c := &ChatHistory{SessionID: h.SessionID, UserID: h.UserID, Messages: make([]Message, len(h.Messages))}
	for i, m := range h.Messages {
		m.Parts = append([]Part(nil), m.Parts...)
		c.Messages[i] = m
	}
	return c
}

// Reduce 在非 system 消息数超过 target+threshold 时截断，
// 只保留 system 消息和最近的 target 条消息，保留窗口不以 assistant 消息开头。
// 返回是否发生了截断。
func (h *ChatHistory) Reduce(target, threshold int) bool {
	if target <= 0 {
		return false
	}
	var system []Message
	if len(h.Messages) > 0 && h.Messages[0].Role == RoleSystem {
		system = h.Messages[:1]
	}
	conv := h.Messages[len(system):]
	if len(conv) <= target+threshold {
		return false
	}

	start := len(conv) - target
	for start < len(conv) && conv[start].Role == RoleAssistant {
		start++
	}
	kept := make([]Message, 0, len(system)+len(conv)-start)
	kept = append(kept, system...)
	kept = append(kept, conv[start:]...)
	h.Messages = kept
	return true
}

// HistoryRecord 是会话历史的持久化形式，Messages 为序列化后的 JSON。
type HistoryRecord struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Messages  string    `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordFromHistory 序列化会话历史。
func RecordFromHistory(h *ChatHistory) (*HistoryRecord, error) {
	b, err := json.Marshal(h.Messages)
	if err != nil {
		return nil, fmt.Errorf("序列化会话历史失败: %w", err)
	}
	return &HistoryRecord{
		SessionID: h.SessionID,
		UserID:    h.UserID,
		Messages:  string(b),
		Timestamp: time.Now().UTC(),
	}, nil
}

// History 反序列化记录中的消息。
func (r *HistoryRecord) History() (*ChatHistory, error) {
	h := &ChatHistory{SessionID: r.SessionID, UserID: r.UserID}
	if r.Messages != "" {
		if err := json.Unmarshal([]byte(r.Messages), &h.Messages); err != nil {
			return nil, fmt.Errorf("反序列化会话历史失败: %w", err)
		}
	}
	return h, nil
}
