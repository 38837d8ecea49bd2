package service

import (
	"context"
	"errors"
	"fmt"
)

// 错误分类，handler 根据这些哨兵错误映射 HTTP 状态码。
var (
	ErrClientInput       = errors.New("invalid request: provide either a prompt or an image")
	ErrRetrieval         = errors.New("retrieval failed")
	ErrCompletion        = errors.New("completion failed")
	ErrPersistence       = errors.New("history persistence failed")
	ErrTimeout           = errors.New("upstream call timed out")
	ErrVisionUnsupported = errors.New("image input requires a vision-capable model")
	ErrToolLoopExceeded  = errors.New("tool call rounds exceeded")
	ErrSessionInfoNotSet = errors.New("session info is not set")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrStreamInterrupted = errors.New("answer stream interrupted")
	ErrCanceled          = errors.New("request canceled by caller")
	ErrSessionForbidden  = errors.New("session belongs to another user")
)

// Stage 是编排流程中的一个状态。
type Stage string

const (
	StageReceivingInput Stage = "receiving_input"
	StageRewriting      Stage = "rewriting"
	StageRetrieving     Stage = "retrieving"
	StageResponding     Stage = "responding"
	StagePersisting     Stage = "persisting"
	StageDone           Stage = "done"
)

// StageError 记录出错的阶段。
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// classify 把上游错误归类：超时统一为 ErrTimeout，调用方取消为 ErrCanceled，
// 其余包装为 kind。已经带有分类的错误原样返回。
func classify(err error, kind error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrClientInput, ErrVisionUnsupported, ErrToolLoopExceeded, ErrStreamInterrupted,
		ErrTimeout, ErrCanceled, ErrSessionForbidden} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
