package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/embedding"
	"hotel-rag-go/pkg/es"
	"hotel-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// Retriever 检索与查询相关的酒店。
type Retriever interface {
	Search(ctx context.Context, q model.RetrievalQuery) ([]model.Hotel, error)
}

type searchService struct {
	esClient        *elasticsearch.Client
	embeddingClient embedding.Client
	cfg             config.SearchConfig
}

// NewSearchService 创建基于 Elasticsearch 的 Retriever。embeddingClient 可以为 nil，
// 此时 vector 模式要求调用方提供向量，hybrid 模式依赖服务端的 embedding 模型。
func NewSearchService(esClient *elasticsearch.Client, embeddingClient embedding.Client, cfg config.SearchConfig) Retriever {
	return &searchService{esClient: esClient, embeddingClient: embeddingClient, cfg: cfg}
}

// Search 按 q.Mode 执行检索，未映射成功的记录被丢弃。
func (s *searchService) Search(ctx context.Context, q model.RetrievalQuery) ([]model.Hotel, error) {
	start := time.Now()
	body, err := s.buildQuery(ctx, q)
	if err != nil {
		return nil, classify(err, ErrRetrieval)
	}

	hits, err := es.Search(ctx, s.esClient, s.cfg.IndexName, body)
	if err != nil {
		log.Errorw("[SearchService] 检索失败", "mode", q.Mode, "error", err)
		return nil, classify(err, ErrRetrieval)
	}

	hotels := mapHotels(hits)
	log.Infow("[SearchService] 检索完成",
		"mode", q.Mode, "hits", len(hits), "mapped", len(hotels), "elapsed", time.Since(start))
	return hotels, nil
}

func mapHotels(hits []json.RawMessage) []model.Hotel {
	hotels := make([]model.Hotel, 0, len(hits))
	for _, raw := range hits {
		var rec model.RawHotel
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warnw("[SearchService] 无法解析检索结果，已丢弃", "error", err)
			continue
		}
		h, err := rec.ToHotel()
		if err != nil {
			log.Warnw("[SearchService] 检索结果缺少字段，已丢弃", "error", err)
			continue
		}
		hotels = append(hotels, h)
	}
	return hotels
}

func (s *searchService) topK(q model.RetrievalQuery) int {
	if q.K > 0 {
		return q.K
	}
	if s.cfg.TopK > 0 {
		return s.cfg.TopK
	}
	return 10
}

func (s *searchService) numCandidates(k int) int {
	return max(s.cfg.NumCandidates, k)
}

func (s *searchService) embed(ctx context.Context, q model.RetrievalQuery) ([]float32, error) {
	if len(q.Embedding) > 0 {
		return q.Embedding, nil
	}
	if s.embeddingClient == nil {
		return nil, errors.New("vector search needs an embedding but no embedding client is configured")
	}
	return s.embeddingClient.CreateEmbedding(ctx, q.Text)
}

// buildQuery 生成 Elasticsearch 查询体。
func (s *searchService) buildQuery(ctx context.Context, q model.RetrievalQuery) (map[string]interface{}, error) {
	source := map[string]interface{}{"excludes": []string{s.cfg.VectorField}}

	switch q.Mode {
	case model.SearchKeyword:
		return map[string]interface{}{
			"size":    s.topK(q),
			"_source": source,
			"query": map[string]interface{}{
				"match": map[string]interface{}{s.cfg.TextField: q.Text},
			},
		}, nil

	case model.SearchVector:
		vec, err := s.embed(ctx, q)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"size":    model.VectorK,
			"_source": source,
			"knn": map[string]interface{}{
				"field":          s.cfg.VectorField,
				"query_vector":   vec,
				"k":              model.VectorK,
				"num_candidates": s.numCandidates(model.VectorK),
			},
		}, nil

	case model.SearchHybrid, "":
		k := s.topK(q)
		knn := map[string]interface{}{
			"field":          s.cfg.VectorField,
			"k":              k,
			"num_candidates": s.numCandidates(k),
		}
		switch {
		case len(q.Embedding) > 0:
			knn["query_vector"] = q.Embedding
		case s.cfg.EmbeddingModelID != "":
			// 由服务端的推理模型生成查询向量
			knn["query_vector_builder"] = map[string]interface{}{
				"text_embedding": map[string]interface{}{
					"model_id":   s.cfg.EmbeddingModelID,
					"model_text": q.Text,
				},
			}
		default:
			vec, err := s.embed(ctx, q)
			if err != nil {
				return nil, err
			}
			knn["query_vector"] = vec
		}

		retriever := map[string]interface{}{
			"rrf": map[string]interface{}{
				"retrievers": []interface{}{
					map[string]interface{}{"standard": map[string]interface{}{
						"query": map[string]interface{}{
							"match": map[string]interface{}{s.cfg.TextField: q.Text},
						},
					}},
					map[string]interface{}{"knn": knn},
				},
				"rank_window_size": s.numCandidates(k),
			},
		}

		semantic := q.SemanticConfiguration
		if semantic == "" {
			semantic = s.cfg.SemanticConfiguration
		}
		if semantic != "" {
			retriever = map[string]interface{}{
				"text_similarity_reranker": map[string]interface{}{
					"retriever":        retriever,
					"field":            s.cfg.TextField,
					"inference_id":     semantic,
					"inference_text":   q.Text,
					"rank_window_size": s.numCandidates(k),
				},
			}
		}
		return map[string]interface{}{
			"size":      k,
			"_source":   source,
			"retriever": retriever,
		}, nil
	}
	return nil, fmt.Errorf("unknown search mode %q", q.Mode)
}
