package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Chunk 是流中的一个增量。
type Chunk struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// Stream 逐个返回增量，收到 [DONE] 或连接正常结束后返回 io.EOF。
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []ToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body)}
}

func (s *sseStream) Recv() (Chunk, error) {
	for !s.done {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				return Chunk{}, fmt.Errorf("failed to read from stream: %w", err)
			}
			if line == "" {
				break
			}
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			break
		}

		var resp streamResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue
		}
		// Azure 的首个分块只带 prompt_filter_results，没有 choices
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		chunk := Chunk{Content: choice.Delta.Content, ToolCalls: choice.Delta.ToolCalls}
		if choice.FinishReason != nil {
			chunk.FinishReason = *choice.FinishReason
		}
		if chunk.Content == "" && len(chunk.ToolCalls) == 0 && chunk.FinishReason == "" {
			continue
		}
		return chunk, nil
	}
	return Chunk{}, io.EOF
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
