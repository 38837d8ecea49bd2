package service

import (
	"context"
	"fmt"
	"strings"
)

// Fragment 是回答流中的一段文本。Done 为 true 的元素是结束标记，Err 为生产端的最终错误。
type Fragment struct {
	Text string
	Done bool
	Err  error
}

// ChunkWriter 把分块下发给调用方，返回错误表示调用方已不可达。
type ChunkWriter interface {
	WriteChunk(text string) error
}

// ChunkWriterFunc 把普通函数适配为 ChunkWriter。
type ChunkWriterFunc func(text string) error

func (f ChunkWriterFunc) WriteChunk(text string) error { return f(text) }

// Relay 按到达顺序把每个分块写给 w 并同时累积，直到收到结束标记。
// 写入失败时调用 cancel 通知生产端停止，之后只排空通道、不再累积。
// 返回已下发内容的拼接，以及生产端或写入端的错误。
func Relay(frags <-chan Fragment, w ChunkWriter, cancel context.CancelFunc) (string, error) {
	var acc strings.Builder
	var writeErr error
	for frag := range frags {
		if frag.Done {
			if writeErr != nil {
				return acc.String(), writeErr
			}
			return acc.String(), frag.Err
		}
		if writeErr != nil || frag.Text == "" {
			continue
		}
		if err := w.WriteChunk(frag.Text); err != nil {
			writeErr = fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
			if cancel != nil {
				cancel()
			}
			continue
		}
		acc.WriteString(frag.Text)
	}
	if writeErr != nil {
		return acc.String(), writeErr
	}
	// 通道在结束标记之前关闭
	return acc.String(), ErrStreamInterrupted
}
