package model

import "time"

// Conversation 代表一次归档的问答交互。
type Conversation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"eventId"`
	SessionID  string    `gorm:"type:varchar(128);index;not null" json:"sessionId"`
	UserID     string    `gorm:"type:varchar(128);index;not null" json:"userId"`
	Question   string    `gorm:"type:text;not null" json:"question"`
	Standalone string    `gorm:"type:text" json:"standaloneQuestion"`
	Answer     string    `gorm:"type:text;not null" json:"answer"`
	ImageRef   string    `gorm:"type:varchar(255)" json:"imageRef,omitempty"`
	Persisted  bool      `gorm:"not null;default:false" json:"persisted"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}
