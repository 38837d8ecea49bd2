package repository

import (
	"context"
	"errors"
	"fmt"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/es"

	"github.com/elastic/go-elasticsearch/v8"
)

const historyIndexMapping = `{
	"mappings": {
		"properties": {
			"session_id": { "type": "keyword" },
			"user_id": { "type": "keyword" },
			"messages": { "type": "text", "index": false },
			"timestamp": { "type": "date" }
		}
	}
}`

type esHistoryRepository struct {
	client    *elasticsearch.Client
	indexName string
}

// NewESHistoryRepository 把会话历史保存在 Elasticsearch 索引中，文档 ID 即 session_id。
func NewESHistoryRepository(client *elasticsearch.Client, indexName string) HistoryRepository {
	return &esHistoryRepository{client: client, indexName: indexName}
}

func (r *esHistoryRepository) EnsureCollection(ctx context.Context) error {
	return es.CreateIndexIfNotExists(ctx, r.client, r.indexName, historyIndexMapping)
}

func (r *esHistoryRepository) Get(ctx context.Context, sessionID string) (*model.HistoryRecord, error) {
	var record model.HistoryRecord
	err := es.GetDocument(ctx, r.client, r.indexName, sessionID, &record)
	if errors.Is(err, es.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	return &record, nil
}

func (r *esHistoryRepository) Upsert(ctx context.Context, record *model.HistoryRecord) error {
	if err := es.IndexDocument(ctx, r.client, r.indexName, record.SessionID, record); err != nil {
		return fmt.Errorf("failed to upsert chat history: %w", err)
	}
	return nil
}
