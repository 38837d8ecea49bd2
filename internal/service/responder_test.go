package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/llm"
)

func drain(frags <-chan Fragment) (string, error) {
	var sb strings.Builder
	for f := range frags {
		if f.Done {
			return sb.String(), f.Err
		}
		sb.WriteString(f.Text)
	}
	return sb.String(), errors.New("channel closed without done")
}

func toolCallChunk(id, name, args string) llm.Chunk {
	return llm.Chunk{ToolCalls: []llm.ToolCallDelta{{
		Index:    0,
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}}}
}

func TestBuildPromptEmptyContext(t *testing.T) {
	got := BuildPrompt("Answer using the context.", "hotels in Berlin?", model.NewChatHistory("s", "u", "sys"), nil)
	want := "Answer using the context.\n\ncontext: []\n\nchat history:\n\n\nuser: hotels in Berlin?"
	if got != want {
		t.Fatalf("prompt =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildPromptSerializesHotels(t *testing.T) {
	got := BuildPrompt("d", "q", nil, testHotels[:1])
	if !strings.Contains(got, `"hotelName":"Hotel Adlon"`) || !strings.Contains(got, `"id":"1"`) {
		t.Fatalf("prompt = %q", got)
	}
}

func TestRespondStreamsChunks(t *testing.T) {
	f := &fakeLLM{streams: [][]llm.Chunk{textChunks("Hotel ", "Adlon")}}
	r := NewResponder(f, nil, ResponderConfig{Model: "answer-model", Directive: "d"}, nil)

	out, err := drain(r.Respond(context.Background(), "q", nil, testHotels))
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hotel Adlon" {
		t.Fatalf("out = %q", out)
	}
	req := f.streamReqs[0]
	if req.Model != "answer-model" || len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("request = %+v", req)
	}
	if req.Tools != nil {
		t.Fatalf("no tools should be declared, got %+v", req.Tools)
	}
}

func TestRespondRunsToolLoop(t *testing.T) {
	retriever := &fakeRetriever{hotels: testHotels}
	tools, err := NewToolRegistry(HotelSearchTool(retriever, 3))
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeLLM{streams: [][]llm.Chunk{
		{toolCallChunk("call_1", "hotel_search", `{"query":`), toolCallChunk("", "", `"spa berlin"}`)},
		textChunks("Try ", "Hotel Adlon."),
	}}
	r := NewResponder(f, tools, ResponderConfig{Model: "m"}, nil)

	out, err := drain(r.Respond(context.Background(), "spa in berlin", nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if out != "Try Hotel Adlon." {
		t.Fatalf("out = %q", out)
	}
	if len(retriever.queries) != 1 || retriever.queries[0].Text != "spa berlin" {
		t.Fatalf("tool queries = %+v", retriever.queries)
	}
	if len(f.streamReqs) != 2 {
		t.Fatalf("stream calls = %d", len(f.streamReqs))
	}
	second := f.streamReqs[1].Messages
	if len(second) != 3 || second[1].Role != llm.RoleAssistant || len(second[1].ToolCalls) != 1 {
		t.Fatalf("second request messages = %+v", second)
	}
	if second[2].Role != llm.RoleTool || second[2].ToolCallID != "call_1" {
		t.Fatalf("tool message = %+v", second[2])
	}
	var hotels []model.Hotel
	if err := json.Unmarshal([]byte(second[2].Content), &hotels); err != nil || len(hotels) != 2 {
		t.Fatalf("tool result = %q (%v)", second[2].Content, err)
	}
}

func TestRespondUnknownToolIsReportedToModel(t *testing.T) {
	tools, _ := NewToolRegistry()
	f := &fakeLLM{streams: [][]llm.Chunk{
		{toolCallChunk("call_1", "book_room", `{}`)},
		textChunks("Sorry."),
	}}
	r := NewResponder(f, tools, ResponderConfig{}, nil)
	out, err := drain(r.Respond(context.Background(), "q", nil, nil))
	if err != nil || out != "Sorry." {
		t.Fatalf("got %q, %v", out, err)
	}
	if c := f.streamReqs[1].Messages[2].Content; !strings.Contains(c, "unknown tool") {
		t.Fatalf("tool result = %q", c)
	}
}

func TestRespondToolLoopExceeded(t *testing.T) {
	tools, _ := NewToolRegistry(HotelSearchTool(&fakeRetriever{}, 3))
	call := []llm.Chunk{toolCallChunk("c", "hotel_search", `{"query":"x"}`)}
	f := &fakeLLM{streams: [][]llm.Chunk{call, call, call}}
	r := NewResponder(f, tools, ResponderConfig{MaxToolRounds: 1}, nil)

	_, err := drain(r.Respond(context.Background(), "q", nil, nil))
	if !errors.Is(err, ErrToolLoopExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(f.streamReqs) != 2 {
		t.Fatalf("stream calls = %d", len(f.streamReqs))
	}
}

func TestRespondStreamErrors(t *testing.T) {
	f := &fakeLLM{streamErr: errors.New("503")}
	_, err := drain(NewResponder(f, nil, ResponderConfig{}, nil).Respond(context.Background(), "q", nil, nil))
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("err = %v", err)
	}

	f = &fakeLLM{streams: [][]llm.Chunk{textChunks("par")}, recvErr: errors.New("reset")}
	out, err := drain(NewResponder(f, nil, ResponderConfig{}, nil).Respond(context.Background(), "q", nil, nil))
	if !errors.Is(err, ErrCompletion) || out != "par" {
		t.Fatalf("got %q, %v", out, err)
	}
}
