package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/embedding"
	"hotel-rag-go/pkg/log"

	"github.com/blevesearch/bleve"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// localSearchService 是进程内的 Retriever：bleve 做关键词检索，内存向量做余弦检索。
// 适合本地开发和小规模数据。
type localSearchService struct {
	index    bleve.Index
	hotels   map[string]model.Hotel
	vectors  map[string][]float32
	embedder embedding.Client
	topK     int
}

type localHotelDoc struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	City        string `json:"city"`
	State       string `json:"state"`
	Description string `json:"description"`
}

// LoadSeedFile 读取 JSON 数组形式的原始酒店记录。
func LoadSeedFile(path string) ([]model.RawHotel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取种子文件失败: %w", err)
	}
	var raws []model.RawHotel
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("解析种子文件失败: %w", err)
	}
	return raws, nil
}

// NewLocalSearchService 建立内存索引。记录自带 text_vector 时直接使用，
// 否则在 embedder 非 nil 时计算向量。
func NewLocalSearchService(ctx context.Context, raws []model.RawHotel, embedder embedding.Client, topK int) (Retriever, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve: %w", err)
	}
	s := &localSearchService{
		index:    index,
		hotels:   make(map[string]model.Hotel, len(raws)),
		vectors:  make(map[string][]float32, len(raws)),
		embedder: embedder,
		topK:     topK,
	}
	var pendingIDs, pendingTexts []string
	for _, raw := range raws {
		h, err := raw.ToHotel()
		if err != nil {
			log.Warnw("[LocalSearch] 种子记录缺少字段，已跳过", "error", err)
			continue
		}
		doc := localHotelDoc{Name: h.Name, Category: h.Category, City: h.City, State: h.State, Description: h.Description}
		if err := index.Index(h.ID, doc); err != nil {
			return nil, fmt.Errorf("bleve index %s: %w", h.ID, err)
		}
		s.hotels[h.ID] = h

		switch {
		case len(raw.TextVector) > 0:
			s.vectors[h.ID] = raw.TextVector
		case embedder != nil:
			pendingIDs = append(pendingIDs, h.ID)
			pendingTexts = append(pendingTexts, h.Description)
		}
	}
	if len(pendingTexts) > 0 {
		vecs, err := embedding.Batch(ctx, embedder, pendingTexts)
		if err != nil {
			return nil, fmt.Errorf("embed hotels: %w", err)
		}
		for i, id := range pendingIDs {
			if len(vecs[i]) > 0 {
				s.vectors[id] = vecs[i]
			}
		}
	}
	log.Infof("[LocalSearch] 已加载 %d 家酒店, 其中 %d 家带向量", len(s.hotels), len(s.vectors))
	return s, nil
}

func (s *localSearchService) Search(ctx context.Context, q model.RetrievalQuery) ([]model.Hotel, error) {
	k := q.K
	if k <= 0 {
		k = s.topK
	}
	if k <= 0 {
		k = 10
	}

	switch q.Mode {
	case model.SearchKeyword:
		ids, err := s.keyword(q.Text, k)
		if err != nil {
			return nil, classify(err, ErrRetrieval)
		}
		return s.resolve(ids), nil

	case model.SearchVector:
		vec, err := s.queryVector(ctx, q)
		if err != nil {
			return nil, classify(err, ErrRetrieval)
		}
		if vec == nil {
			return nil, fmt.Errorf("%w: vector search needs an embedding", ErrRetrieval)
		}
		return s.resolve(s.nearest(vec, model.VectorK)), nil

	case model.SearchHybrid, "":
		if q.SemanticConfiguration != "" {
			log.Debugw("[LocalSearch] 本地索引不支持语义重排，已忽略", "semantic_configuration", q.SemanticConfiguration)
		}
		kw, err := s.keyword(q.Text, k*3)
		if err != nil {
			return nil, classify(err, ErrRetrieval)
		}
		vec, err := s.queryVector(ctx, q)
		if err != nil {
			// 向量不可用时退化为关键词检索
			log.Warnw("[LocalSearch] 查询向量化失败，仅使用关键词结果", "error", err)
			vec = nil
		}
		var nn []string
		if vec != nil {
			nn = s.nearest(vec, k*3)
		}
		return s.resolve(fuseRRF(k, kw, nn)), nil
	}
	return nil, fmt.Errorf("%w: unknown search mode %q", ErrRetrieval, q.Mode)
}

// Close 释放 bleve 索引。
func (s *localSearchService) Close() error {
	return s.index.Close()
}

func (s *localSearchService) keyword(text string, k int) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), k, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (s *localSearchService) queryVector(ctx context.Context, q model.RetrievalQuery) ([]float32, error) {
	if len(q.Embedding) > 0 {
		return q.Embedding, nil
	}
	if s.embedder == nil || len(s.vectors) == 0 {
		return nil, nil
	}
	return s.embedder.CreateEmbedding(ctx, q.Text)
}

func (s *localSearchService) nearest(vec []float32, k int) []string {
	type scored struct {
		id    string
		score float64
	}
	scoreds := make([]scored, 0, len(s.vectors))
	for id, v := range s.vectors {
		scoreds = append(scoreds, scored{id: id, score: cosine(vec, v)})
	}
	sort.Slice(scoreds, func(i, j int) bool {
		if scoreds[i].score != scoreds[j].score {
			return scoreds[i].score > scoreds[j].score
		}
		return scoreds[i].id < scoreds[j].id
	})
	ids := make([]string, 0, min(k, len(scoreds)))
	for i := 0; i < min(k, len(scoreds)); i++ {
		ids = append(ids, scoreds[i].id)
	}
	return ids
}

func (s *localSearchService) resolve(ids []string) []model.Hotel {
	out := make([]model.Hotel, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.hotels[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// fuseRRF 按倒数排名融合多个有序 ID 列表，返回前 k 个。
func fuseRRF(k int, lists ...[]string) []string {
	scores := map[string]float64{}
	var order []string
	for _, list := range lists {
		for rank, id := range list {
			if _, ok := scores[id]; !ok {
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	if len(order) > k {
		order = order[:k]
	}
	return order
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
