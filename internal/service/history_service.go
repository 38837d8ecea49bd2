package service

import (
	"context"
	"fmt"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/pkg/log"
)

// HistoryService 负责会话历史的加载、截断与保存。
type HistoryService struct {
	repo           repository.HistoryRepository
	systemMessage  string
	targetCount    int
	thresholdCount int
}

func NewHistoryService(repo repository.HistoryRepository, systemMessage string, targetCount, thresholdCount int) *HistoryService {
	return &HistoryService{
		repo:           repo,
		systemMessage:  systemMessage,
		targetCount:    targetCount,
		thresholdCount: thresholdCount,
	}
}

// Load 读取会话历史。没有记录时返回只含 system 消息的新历史，并附加客户端提供的 seed。
// 记录属于其他用户时返回 ErrSessionForbidden。
func (s *HistoryService) Load(ctx context.Context, sessionID, userID string, seed []model.Message) (*model.ChatHistory, error) {
	record, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err, ErrPersistence)
	}
	if record == nil {
		h := model.NewChatHistory(sessionID, userID, s.systemMessage)
		h.Append(seed...)
		return h, nil
	}

	h, err := record.History()
	if err != nil {
		return nil, classify(err, ErrPersistence)
	}
	if h.UserID != "" && h.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrSessionForbidden, sessionID)
	}
	h.SessionID = sessionID
	if h.UserID == "" {
		h.UserID = userID
	}
	if len(h.Messages) == 0 || h.Messages[0].Role != model.RoleSystem {
		h.Messages = append([]model.Message{model.NewTextMessage(model.RoleSystem, s.systemMessage)}, h.Messages...)
	}
	return h, nil
}

// Get 返回已保存的历史，不存在时返回 nil。
func (s *HistoryService) Get(ctx context.Context, sessionID string) (*model.ChatHistory, error) {
	record, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err, ErrPersistence)
	}
	if record == nil {
		return nil, nil
	}
	h, err := record.History()
	if err != nil {
		return nil, classify(err, ErrPersistence)
	}
	return h, nil
}

// Save 截断后整体写入历史。
func (s *HistoryService) Save(ctx context.Context, h *model.ChatHistory) error {
	if !h.SessionInfoSet() {
		return fmt.Errorf("%w: %w", ErrPersistence, ErrSessionInfoNotSet)
	}
	if h.Reduce(s.targetCount, s.thresholdCount) {
		log.Infow("[HistoryService] 会话历史已截断", "session_id", h.SessionID, "kept", len(h.Messages))
	}
	record, err := model.RecordFromHistory(h)
	if err != nil {
		return classify(err, ErrPersistence)
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return classify(err, ErrPersistence)
	}
	return nil
}
