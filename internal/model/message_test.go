package model

import (
	"encoding/json"
	"testing"
)

func TestMessageRender(t *testing.T) {
	m := Message{Role: RoleUser, Parts: []Part{TextPart("like this one"), ImagePart("images/s/1.png")}}
	if got := m.Render(); got != "user: like this one [image: images/s/1.png]" {
		t.Errorf("Render() = %q", got)
	}
	if got := m.Text(); got != "like this one" {
		t.Errorf("Text() = %q", got)
	}
}

func TestMessageUnmarshalForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"content string", `{"role":"user","content":"beach hotel"}`, "user: beach hotel"},
		{"content parts", `{"role":"assistant","content":[{"type":"text","text":"Try Ocean View"}]}`, "assistant: Try Ocean View"},
		{"parts", `{"role":"user","parts":[{"type":"image_ref","image_ref":"inline:a.png"}]}`, "user: [image: inline:a.png]"},
		{"no content", `{"role":"assistant"}`, "assistant: "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
				t.Fatal(err)
			}
			if got := m.Render(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessageUnmarshalRejectsUnknownRole(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"tool","content":"x"}`), &m); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if err := json.Unmarshal([]byte(`{"role":"user","content":42}`), &m); err == nil {
		t.Fatal("expected error for numeric content")
	}
}
