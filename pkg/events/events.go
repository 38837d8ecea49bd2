// Package events defines the messages that are sent to Kafka.
package events

import "time"

// TurnEvent 描述一个已完成的对话轮次，用于异步归档。
type TurnEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Question   string    `json:"question"`
	Standalone string    `json:"standalone_question"`
	Answer     string    `json:"answer"`
	ImageRef   string    `json:"image_ref,omitempty"`
	Persisted  bool      `json:"persisted"`
	Timestamp  time.Time `json:"timestamp"`
}
