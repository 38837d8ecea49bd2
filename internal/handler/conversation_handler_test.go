package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/token"
)

type fakePresigner struct{}

func (fakePresigner) PresignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	if objectName == "broken" {
		return "", errors.New("no such object")
	}
	return "https://minio.local/" + objectName + "?sig=x", nil
}

type fakeConversations struct {
	convs []model.Conversation
}

func (f *fakeConversations) Create(conv *model.Conversation) error {
	f.convs = append(f.convs, *conv)
	return nil
}

func (f *fakeConversations) FindBySession(sessionID string, limit int) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, c := range f.convs {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetHistory(t *testing.T) {
	history := service.NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	h := model.NewChatHistory("s1", "u1", "sys")
	h.AddUser(model.TextPart("like this?"), model.ImagePart("images/s1/a.png"))
	h.AddAssistant("Seaside Resort.")
	if err := history.Save(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	r := NewRouter(RouterDeps{Chat: &fakeChat{}, Retriever: &fakeRetriever{}, History: history, Presigner: fakePresigner{}})

	if w := get(r, "/api/v1/sessions/missing/history", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", w.Code)
	}

	w := get(r, "/api/v1/sessions/s1/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data struct {
			SessionID string        `json:"session_id"`
			Messages  []messageView `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	msgs := resp.Data.Messages
	if len(msgs) != 2 || msgs[0].Role != model.RoleUser || msgs[1].Content != "Seaside Resort." {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Content != "like this? [image: images/s1/a.png]" {
		t.Fatalf("content = %q", msgs[0].Content)
	}
	if msgs[0].Parts[1].ImageURL != "https://minio.local/images/s1/a.png?sig=x" {
		t.Fatalf("image url = %q", msgs[0].Parts[1].ImageURL)
	}
}

func TestGetHistoryForbiddenForOtherUser(t *testing.T) {
	history := service.NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	if err := history.Save(context.Background(), model.NewChatHistory("s1", "owner", "sys")); err != nil {
		t.Fatal(err)
	}
	jwt := token.NewJWTManager("secret", 1)
	r := NewRouter(RouterDeps{Chat: &fakeChat{}, Retriever: &fakeRetriever{}, History: history, JWT: jwt})
	tok, _ := jwt.GenerateToken("intruder", "")
	if w := get(r, "/api/v1/sessions/s1/history", map[string]string{"Authorization": "Bearer " + tok}); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetArchive(t *testing.T) {
	history := service.NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	r := NewRouter(RouterDeps{Chat: &fakeChat{}, Retriever: &fakeRetriever{}, History: history})
	if w := get(r, "/api/v1/sessions/s1/conversations", nil); w.Code != http.StatusNotFound {
		t.Fatalf("archive disabled status = %d", w.Code)
	}

	convs := &fakeConversations{convs: []model.Conversation{
		{EventID: "e1", SessionID: "s1", UserID: "u1", Question: "q", Answer: "a"},
		{EventID: "e2", SessionID: "s2", UserID: "u1", Question: "q", Answer: "a"},
	}}
	r = NewRouter(RouterDeps{Chat: &fakeChat{}, Retriever: &fakeRetriever{}, History: history, Conversations: convs})
	w := get(r, "/api/v1/sessions/s1/conversations", nil)
	var resp struct {
		Data []model.Conversation `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Data) != 1 || resp.Data[0].EventID != "e1" {
		t.Fatalf("archive = %s (%v)", w.Body.String(), err)
	}
}

func TestSearchEndpoint(t *testing.T) {
	retriever := &fakeRetriever{hotels: []model.Hotel{{ID: "1", Name: "Hotel Adlon"}}}
	history := service.NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	r := NewRouter(RouterDeps{Chat: &fakeChat{}, Retriever: retriever, History: history})

	if w := get(r, "/api/v1/search", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("empty query status = %d", w.Code)
	}
	if w := get(r, "/api/v1/search?query=x&mode=fuzzy", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d", w.Code)
	}
	w := get(r, "/api/v1/search?query=berlin&mode=keyword&topK=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if retriever.last.Mode != model.SearchKeyword || retriever.last.K != 2 || retriever.last.Text != "berlin" {
		t.Fatalf("query = %+v", retriever.last)
	}
	if w := get(r, "/api/v1/search?query=berlin&k=4", nil); w.Code != http.StatusOK || retriever.last.K != 4 {
		t.Fatalf("k param: status %d, query %+v", w.Code, retriever.last)
	}

	retriever.err = service.ErrRetrieval
	if w := get(r, "/api/v1/search?query=berlin", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("error status = %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	history := service.NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	r := NewRouter(RouterDeps{Chat: &fakeChat{}, Retriever: &fakeRetriever{}, History: history})
	if w := get(r, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
