package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hotel-rag-go/internal/model"
)

const seedV1 = `[{"Id":"1","HotelName":"Old Inn","Category":"Budget","City":"Berlin","State":"BE","chunk":"cheap rooms"}]`
const seedV2 = `[{"Id":"2","HotelName":"New Palace","Category":"Luxury","City":"Berlin","State":"BE","chunk":"palace with spa"}]`

func TestWatchSeedFileRebuildsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotels.json")
	if err := os.WriteFile(path, []byte(seedV1), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	build := func(ctx context.Context) (Retriever, error) {
		raws, err := LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		return NewLocalSearchService(ctx, raws, nil, 3)
	}
	initial, err := build(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r := NewReloadableRetriever(initial)
	if err := WatchSeedFile(ctx, path, r, build); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(seedV2), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		hits, err := r.Search(ctx, model.RetrievalQuery{Text: "palace", Mode: model.SearchKeyword})
		if err == nil && len(hits) == 1 && hits[0].Name == "New Palace" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("index was not rebuilt after the seed file changed")
}

func TestReloadableRetrieverSwap(t *testing.T) {
	r := NewReloadableRetriever(&fakeRetriever{hotels: testHotels[:1]})
	r.Swap(&fakeRetriever{})
	hits, err := r.Search(context.Background(), model.RetrievalQuery{Text: "x"})
	if err != nil || len(hits) != 0 {
		t.Fatalf("hits = %v, err = %v", hits, err)
	}
}

// closingRetriever 记录 Close 调用，release 关闭前 Search 一直阻塞。
type closingRetriever struct {
	started chan struct{}
	release chan struct{}
	closed  chan struct{}
}

func newClosingRetriever() *closingRetriever {
	return &closingRetriever{started: make(chan struct{}, 1), release: make(chan struct{}), closed: make(chan struct{})}
}

func (c *closingRetriever) Search(context.Context, model.RetrievalQuery) ([]model.Hotel, error) {
	c.started <- struct{}{}
	<-c.release
	return testHotels, nil
}

func (c *closingRetriever) Close() error {
	close(c.closed)
	return nil
}

func TestReloadableRetrieverClosesOldAfterInflightSearches(t *testing.T) {
	old := newClosingRetriever()
	r := NewReloadableRetriever(old)

	searchDone := make(chan []model.Hotel)
	go func() {
		hits, _ := r.Search(context.Background(), model.RetrievalQuery{Text: "x"})
		searchDone <- hits
	}()
	<-old.started

	swapped := make(chan struct{})
	go func() {
		r.Swap(&fakeRetriever{})
		close(swapped)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		r.mu.RLock()
		current := r.current.retriever
		r.mu.RUnlock()
		if current != Retriever(old) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("retriever was not swapped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// 新的检索立即使用新实例
	if hits, err := r.Search(context.Background(), model.RetrievalQuery{Text: "x"}); err != nil || len(hits) != 0 {
		t.Fatalf("hits = %v, err = %v", hits, err)
	}
	select {
	case <-old.closed:
		t.Fatal("old index closed while a search was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(old.release)
	if hits := <-searchDone; len(hits) != len(testHotels) {
		t.Fatalf("in-flight search hits = %v", hits)
	}
	select {
	case <-old.closed:
	case <-time.After(time.Second):
		t.Fatal("old index was not closed")
	}
	<-swapped
}

func TestLocalSearchServiceCloseOnSwap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotels.json")
	if err := os.WriteFile(path, []byte(seedV1), 0o644); err != nil {
		t.Fatal(err)
	}
	raws, err := LoadSeedFile(path)
	if err != nil {
		t.Fatal(err)
	}
	first, err := NewLocalSearchService(context.Background(), raws, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	r := NewReloadableRetriever(first)
	second, err := NewLocalSearchService(context.Background(), raws, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	r.Swap(second)
	if _, err := first.Search(context.Background(), model.RetrievalQuery{Text: "cheap", Mode: model.SearchKeyword}); err == nil {
		t.Fatal("old bleve index should be closed")
	}
	hits, err := r.Search(context.Background(), model.RetrievalQuery{Text: "cheap", Mode: model.SearchKeyword})
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits = %v, err = %v", hits, err)
	}
}
