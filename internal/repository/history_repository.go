// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hotel-rag-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// HistoryRepository 定义了会话历史记录的持久化操作，每个 session 一条记录。
type HistoryRepository interface {
	// EnsureCollection 幂等地准备底层存储。
	EnsureCollection(ctx context.Context) error
	// Get 返回 session 的记录，不存在时返回 nil, nil。
	Get(ctx context.Context, sessionID string) (*model.HistoryRecord, error)
	Upsert(ctx context.Context, record *model.HistoryRecord) error
}

type redisHistoryRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisHistoryRepository 创建 Redis 实现，记录在 ttl 后过期。
func NewRedisHistoryRepository(redisClient *redis.Client, ttl time.Duration) HistoryRepository {
	return &redisHistoryRepository{redisClient: redisClient, ttl: ttl}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("chat_history:%s", sessionID)
}

// EnsureCollection Redis 不需要预先创建
func (r *redisHistoryRepository) EnsureCollection(ctx context.Context) error {
	return r.redisClient.Ping(ctx).Err()
}

// Get 从 Redis 获取会话历史记录。
func (r *redisHistoryRepository) Get(ctx context.Context, sessionID string) (*model.HistoryRecord, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	var record model.HistoryRecord
	if err := json.Unmarshal([]byte(jsonData), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat history: %w", err)
	}
	return &record, nil
}

// Upsert 覆盖写入会话历史记录并刷新过期时间。
func (r *redisHistoryRepository) Upsert(ctx context.Context, record *model.HistoryRecord) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal chat history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(record.SessionID), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set chat history: %w", err)
	}
	return nil
}

// memoryHistoryRepository 只保存在进程内，用于本地开发和测试。
type memoryHistoryRepository struct {
	mu      sync.RWMutex
	records map[string]model.HistoryRecord
}

func NewMemoryHistoryRepository() HistoryRepository {
	return &memoryHistoryRepository{records: make(map[string]model.HistoryRecord)}
}

func (r *memoryHistoryRepository) EnsureCollection(ctx context.Context) error { return nil }

func (r *memoryHistoryRepository) Get(ctx context.Context, sessionID string) (*model.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memoryHistoryRepository) Upsert(ctx context.Context, record *model.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.SessionID] = *record
	return nil
}
