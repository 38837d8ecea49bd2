package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"hotel-rag-go/internal/config"
)

func TestCreateEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "text-embedding-3-small" || len(req.Input) != 1 || req.Input[0] != "spa hotel" {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3]}]}`)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "text-embedding-3-small"})
	vec, err := c.CreateEmbedding(context.Background(), "spa hotel")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
}

func TestCreateEmbeddingEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(config.EmbeddingConfig{BaseURL: srv.URL}).CreateEmbedding(context.Background(), "x")
	if !errors.Is(err, ErrEmptyEmbedding) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateEmbeddingNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewClient(config.EmbeddingConfig{BaseURL: srv.URL}).CreateEmbedding(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreateEmbeddingsKeepsInputOrder(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		// 倒序返回，客户端应按 index 还原
		fmt.Fprint(w, `{"data":[`)
		for i := len(req.Input) - 1; i >= 0; i-- {
			fmt.Fprintf(w, `{"index":%d,"embedding":[%d]}`, i, len(req.Input[i]))
			if i > 0 {
				fmt.Fprint(w, ",")
			}
		}
		fmt.Fprint(w, `]}`)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL}).(BatchClient)
	vecs, err := c.CreateEmbeddings(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatal(err)
	}
	if requests != 1 || len(vecs) != 3 {
		t.Fatalf("requests = %d, vecs = %v", requests, vecs)
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Errorf("vecs[%d] = %v", i, v)
		}
	}
}

type singleClient struct{ calls int }

func (s *singleClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	s.calls++
	return []float32{float32(len(text))}, nil
}

func TestBatchFallsBackToSingleCalls(t *testing.T) {
	c := &singleClient{}
	vecs, err := Batch(context.Background(), c, []string{"x", "yy"})
	if err != nil {
		t.Fatal(err)
	}
	if c.calls != 2 || vecs[1][0] != 2 {
		t.Fatalf("calls = %d, vecs = %v", c.calls, vecs)
	}
}
