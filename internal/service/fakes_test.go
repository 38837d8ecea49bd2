package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/pkg/llm"
)

// fakeLLM 按顺序返回预设的补全结果和流。
// blockComplete/blockStream 为 true 时调用一直阻塞到 ctx 结束，用于模拟上游超时。
type fakeLLM struct {
	mu            sync.Mutex
	completions   []string
	completeErr   error
	streams       [][]llm.Chunk
	streamErr     error
	recvErr       error
	blockComplete bool
	blockStream   bool

	completeReqs []llm.ChatRequest
	streamReqs   []llm.ChatRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.completeReqs = append(f.completeReqs, req)
	if f.blockComplete {
		f.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if len(f.completions) == 0 {
		return "", nil
	}
	out := f.completions[0]
	f.completions = f.completions[1:]
	return out, nil
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamReqs = append(f.streamReqs, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	var chunks []llm.Chunk
	if len(f.streams) > 0 {
		chunks = f.streams[0]
		f.streams = f.streams[1:]
	}
	return &fakeStream{ctx: ctx, chunks: chunks, err: f.recvErr, block: f.blockStream}, nil
}

func (f *fakeLLM) calls() (complete, stream int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completeReqs), len(f.streamReqs)
}

// fakeStream 依次返回 chunks；block 为 true 时在 chunks 之后阻塞到 ctx 结束。
type fakeStream struct {
	ctx    context.Context
	chunks []llm.Chunk
	err    error
	block  bool
	closed bool
}

func (s *fakeStream) Recv() (llm.Chunk, error) {
	if len(s.chunks) == 0 {
		if s.block {
			<-s.ctx.Done()
			return llm.Chunk{}, s.ctx.Err()
		}
		if s.err != nil {
			return llm.Chunk{}, s.err
		}
		return llm.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func textChunks(texts ...string) []llm.Chunk {
	out := make([]llm.Chunk, 0, len(texts))
	for _, t := range texts {
		out = append(out, llm.Chunk{Content: t})
	}
	return out
}

type fakeRetriever struct {
	mu      sync.Mutex
	hotels  []model.Hotel
	err     error
	queries []model.RetrievalQuery
}

func (f *fakeRetriever) Search(_ context.Context, q model.RetrievalQuery) ([]model.Hotel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.hotels, f.err
}

// failingRepo 在内存实现之上注入读写错误。
type failingRepo struct {
	repository.HistoryRepository
	getErr    error
	upsertErr error
}

func (r *failingRepo) Get(ctx context.Context, id string) (*model.HistoryRecord, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.HistoryRepository.Get(ctx, id)
}

func (r *failingRepo) Upsert(ctx context.Context, rec *model.HistoryRecord) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	return r.HistoryRepository.Upsert(ctx, rec)
}

// collectWriter 记录写入的分块，failAfter>0 时在第 failAfter 次写入返回错误。
type collectWriter struct {
	chunks    []string
	failAfter int
}

func (w *collectWriter) WriteChunk(text string) error {
	if w.failAfter > 0 && len(w.chunks)+1 >= w.failAfter {
		return errors.New("client gone")
	}
	w.chunks = append(w.chunks, text)
	return nil
}

var testHotels = []model.Hotel{
	{ID: "1", Name: "Hotel Adlon", Category: "Luxury", City: "Berlin", State: "BE", Description: "Historic hotel at the Brandenburg Gate."},
	{ID: "2", Name: "Budget Inn", Category: "Budget", City: "Berlin", State: "BE", Description: "Simple rooms near the station."},
}
