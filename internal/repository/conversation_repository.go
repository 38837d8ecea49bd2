package repository

import (
	"errors"

	"hotel-rag-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository 定义了已归档问答的持久化操作。
type ConversationRepository interface {
	// Create 写入一条归档，相同 EventID 重复写入时忽略。
	Create(conv *model.Conversation) error
	FindBySession(sessionID string, limit int) ([]model.Conversation, error)
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(conv *model.Conversation) error {
	if conv.EventID == "" {
		return errors.New("conversation event id is empty")
	}
	// Kafka 至少投递一次，依靠 event_id 唯一索引去重
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(conv).Error
}

// FindBySession 按时间倒序返回会话最近的归档。
func (r *conversationRepository) FindBySession(sessionID string, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	q := r.db.Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&convs).Error
	return convs, err
}
