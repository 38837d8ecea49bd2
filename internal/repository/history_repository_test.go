package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/es"
)

func TestMemoryHistoryRepository(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()
	if err := repo.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err := repo.Get(ctx, "missing")
	if err != nil || rec != nil {
		t.Fatalf("get missing = %v, %v", rec, err)
	}
	if err := repo.Upsert(ctx, &model.HistoryRecord{SessionID: "s1", UserID: "u1", Messages: "[]"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, &model.HistoryRecord{SessionID: "s1", UserID: "u1", Messages: `[{"role":"system","parts":[]}]`}); err != nil {
		t.Fatal(err)
	}
	rec, err = repo.Get(ctx, "s1")
	if err != nil || rec == nil || !strings.Contains(rec.Messages, "system") {
		t.Fatalf("upsert did not overwrite: %+v, %v", rec, err)
	}
}

// fakeES 模拟 chat-history 索引的 HEAD/PUT/GET 接口。
type fakeES struct {
	mu     sync.Mutex
	exists bool
	docs   map[string]json.RawMessage
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && len(parts) == 1:
		f.exists = true
		fmt.Fprint(w, `{"acknowledged":true}`)
	case (r.Method == http.MethodPut || r.Method == http.MethodPost) && len(parts) == 3 && parts[1] == "_doc":
		var doc json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.docs[parts[2]] = doc
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"_id":%q,"result":"created"}`, parts[2])
	case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "_doc":
		doc, ok := f.docs[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"_id":%q,"found":false}`, parts[2])
			return
		}
		fmt.Fprintf(w, `{"_id":%q,"found":true,"_source":%s}`, parts[2], doc)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func TestESHistoryRepository(t *testing.T) {
	fake := &fakeES{docs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := es.NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	repo := NewESHistoryRepository(client, "chat-history")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := repo.EnsureCollection(ctx); err != nil {
			t.Fatalf("EnsureCollection #%d: %v", i, err)
		}
	}
	if !fake.exists {
		t.Fatal("index was not created")
	}

	rec, err := repo.Get(ctx, "s1")
	if err != nil || rec != nil {
		t.Fatalf("missing session = %+v, %v", rec, err)
	}

	h := model.NewChatHistory("s1", "u1", "sys")
	h.AddUser(model.TextPart("find me a beach hotel"))
	want, _ := model.RecordFromHistory(h)
	if err := repo.Upsert(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil || got == nil {
		t.Fatalf("Get: %+v, %v", got, err)
	}
	if got.UserID != "u1" || got.Messages != want.Messages || !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
