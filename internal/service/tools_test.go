package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoArgs struct {
	Word string `json:"word"`
}

type echoResult struct {
	Echo string `json:"echo"`
}

func echoTool(name string) Tool {
	return NewTool(name, "echo a word", json.RawMessage(`{"type":"object"}`),
		func(_ context.Context, in echoArgs) (echoResult, error) {
			return echoResult{Echo: in.Word}, nil
		})
}

func TestToolRegistryInvoke(t *testing.T) {
	r, err := NewToolRegistry(echoTool("echo"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Invoke(context.Background(), "echo", `{"word":"hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"echo":"hi"}` {
		t.Fatalf("out = %s", out)
	}
	if _, err := r.Invoke(context.Background(), "echo", `{bad`); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := r.Invoke(context.Background(), "missing", `{}`); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v", err)
	}
}

func TestToolRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewToolRegistry(echoTool("echo"), echoTool("echo")); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestToolRegistryDefinitionsSorted(t *testing.T) {
	r, _ := NewToolRegistry(echoTool("b"), echoTool("a"))
	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Function.Name != "a" || defs[1].Type != "function" {
		t.Fatalf("defs = %+v", defs)
	}
	var nilRegistry *ToolRegistry
	if nilRegistry.Definitions() != nil || nilRegistry.Has("a") {
		t.Fatal("nil registry should be empty")
	}
}

func TestHotelSearchTool(t *testing.T) {
	retriever := &fakeRetriever{}
	tool := HotelSearchTool(retriever, 5)
	out, err := tool.Call(context.Background(), `{"query":"quiet hotel"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "[]" {
		t.Fatalf("empty result should encode as [], got %s", out)
	}
	q := retriever.queries[0]
	if q.K != 5 || q.Text != "quiet hotel" || q.Mode != "hybrid" {
		t.Fatalf("query = %+v", q)
	}
	if _, err := tool.Call(context.Background(), `{}`); err == nil {
		t.Fatal("expected error for empty query")
	}
}
