package service

import (
	"context"
	"errors"
	"testing"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/repository"
)

func TestHistoryServiceLoadFreshSession(t *testing.T) {
	s := NewHistoryService(repository.NewMemoryHistoryRepository(), "You are a hotel assistant.", 10, 2)
	seed := []model.Message{
		model.NewTextMessage(model.RoleSystem, "ignored"),
		model.NewTextMessage(model.RoleUser, "hi"),
	}
	h, err := s.Load(context.Background(), "s1", "u1", seed)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Messages) != 2 || h.Messages[0].Role != model.RoleSystem || h.Messages[0].Text() != "You are a hotel assistant." {
		t.Fatalf("messages = %+v", h.Messages)
	}
}

func TestHistoryServiceSaveAndReload(t *testing.T) {
	s := NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	ctx := context.Background()
	h, _ := s.Load(ctx, "s1", "u1", nil)
	h.AddUser(model.TextPart("hotels in Berlin?"))
	h.AddAssistant("Hotel Adlon.")
	if err := s.Save(ctx, h); err != nil {
		t.Fatal(err)
	}

	again, err := s.Load(ctx, "s1", "u1", []model.Message{model.NewTextMessage(model.RoleUser, "seed is ignored")})
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Messages) != 3 || again.RenderConversation() != "user: hotels in Berlin?\nassistant: Hotel Adlon." {
		t.Fatalf("reloaded = %q", again.RenderConversation())
	}

	got, err := s.Get(ctx, "s1")
	if err != nil || got == nil || got.UserID != "u1" {
		t.Fatalf("get = %+v, %v", got, err)
	}
	missing, err := s.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("get missing = %+v, %v", missing, err)
	}
}

func TestHistoryServiceSaveReduces(t *testing.T) {
	s := NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 2, 1)
	ctx := context.Background()
	h, _ := s.Load(ctx, "s1", "u1", nil)
	for i := 0; i < 3; i++ {
		h.AddUser(model.TextPart("q"))
		h.AddAssistant("a")
	}
	if err := s.Save(ctx, h); err != nil {
		t.Fatal(err)
	}
	stored, _ := s.Get(ctx, "s1")
	if len(stored.Messages) != 3 || stored.Messages[0].Role != model.RoleSystem || stored.Messages[1].Role != model.RoleUser {
		t.Fatalf("stored = %+v", stored.Messages)
	}
}

func TestHistoryServiceSaveRequiresSessionInfo(t *testing.T) {
	s := NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	err := s.Save(context.Background(), model.NewChatHistory("s1", "", "sys"))
	if !errors.Is(err, ErrSessionInfoNotSet) || !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v", err)
	}
}

func TestHistoryServiceRepositoryErrors(t *testing.T) {
	repo := &failingRepo{HistoryRepository: repository.NewMemoryHistoryRepository(), getErr: errors.New("redis down")}
	s := NewHistoryService(repo, "sys", 10, 2)
	if _, err := s.Load(context.Background(), "s1", "u1", nil); !errors.Is(err, ErrPersistence) {
		t.Fatalf("load err = %v", err)
	}

	repo = &failingRepo{HistoryRepository: repository.NewMemoryHistoryRepository(), upsertErr: errors.New("redis down")}
	s = NewHistoryService(repo, "sys", 10, 2)
	if err := s.Save(context.Background(), model.NewChatHistory("s1", "u1", "sys")); !errors.Is(err, ErrPersistence) {
		t.Fatalf("save err = %v", err)
	}
}

func TestHistoryServiceLoadRejectsOtherUser(t *testing.T) {
	s := NewHistoryService(repository.NewMemoryHistoryRepository(), "sys", 10, 2)
	ctx := context.Background()
	h, _ := s.Load(ctx, "s1", "alice", nil)
	h.AddUser(model.TextPart("q"))
	h.AddAssistant("a")
	if err := s.Save(ctx, h); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(ctx, "s1", "bob", nil); !errors.Is(err, ErrSessionForbidden) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Load(ctx, "s1", "alice", nil); err != nil {
		t.Fatalf("owner load: %v", err)
	}
}
