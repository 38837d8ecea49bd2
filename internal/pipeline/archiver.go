// Package pipeline 定义了轮次事件的异步归档流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/pkg/events"
	"hotel-rag-go/pkg/log"
)

// Archiver 把 Kafka 中的轮次事件写入 MySQL，实现 kafka.TurnProcessor。
type Archiver struct {
	conversations repository.ConversationRepository
}

// NewArchiver 创建一个新的 Archiver 实例。
func NewArchiver(conversations repository.ConversationRepository) *Archiver {
	return &Archiver{conversations: conversations}
}

// Process 归档单个事件。重复投递的事件按 ID 去重。
func (a *Archiver) Process(ctx context.Context, ev events.TurnEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" || ev.SessionID == "" {
		return errors.New("轮次事件缺少 id 或 session_id")
	}
	conv := toConversation(ev)
	if err := a.conversations.Create(conv); err != nil {
		return fmt.Errorf("写入会话归档失败: %w", err)
	}
	log.Debugw("[Archiver] 轮次已归档", "event_id", ev.ID, "session_id", ev.SessionID)
	return nil
}

func toConversation(ev events.TurnEvent) *model.Conversation {
	return &model.Conversation{
		EventID:    ev.ID,
		SessionID:  ev.SessionID,
		UserID:     ev.UserID,
		Question:   ev.Question,
		Standalone: ev.Standalone,
		Answer:     ev.Answer,
		ImageRef:   ev.ImageRef,
		Persisted:  ev.Persisted,
		CreatedAt:  ev.Timestamp,
	}
}
