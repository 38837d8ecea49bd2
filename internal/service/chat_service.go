// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"time"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/events"
	"hotel-rag-go/pkg/lock"
	"hotel-rag-go/pkg/log"
	"hotel-rag-go/pkg/metrics"

	"github.com/google/uuid"
)

// AnonymousUser 是未认证请求使用的用户 ID。
const AnonymousUser = "anonymous"

// ImageStore 保存上传的图片并返回引用。
type ImageStore interface {
	SaveImage(ctx context.Context, sessionID, filename string, data []byte) (string, error)
}

// TurnPublisher 发布已完成的轮次，用于异步归档。
type TurnPublisher interface {
	PublishTurn(ctx context.Context, ev events.TurnEvent) error
}

// ChatRequest 是一次对话请求。History 只在会话还没有持久化记录时作为初始历史。
type ChatRequest struct {
	SessionID string
	UserID    string
	Prompt    string
	Image     *ImageInput
	History   []model.Message
}

// TurnResult 描述一次完成的轮次。Persisted 如实反映历史是否写入成功。
type TurnResult struct {
	SessionID  string
	Standalone string
	Answer     string
	ImageRef   string
	Hits       int
	Persisted  bool
	PersistErr error
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Answer 执行完整的一轮：改写、检索、流式回答、持久化。
	// 回答分块在生成时即写入 w。
	Answer(ctx context.Context, req ChatRequest, w ChunkWriter) (*TurnResult, error)
}

// ChatOptions 配置编排流程。
type ChatOptions struct {
	CallTimeout           time.Duration
	StreamTimeout         time.Duration
	TopK                  int
	SemanticConfiguration string
}

// ChatDeps 汇总编排所需的协作者。Images、Publisher、Locker、Metrics 可以为空。
type ChatDeps struct {
	Rewriter  *Rewriter
	Retriever Retriever
	Responder *Responder
	History   *HistoryService
	Images    ImageStore
	Publisher TurnPublisher
	Locker    lock.Locker
	Metrics   *metrics.Metrics
}

type chatService struct {
	ChatDeps
	opts ChatOptions
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(deps ChatDeps, opts ChatOptions) ChatService {
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	return &chatService{ChatDeps: deps, opts: opts}
}

func (s *chatService) Answer(ctx context.Context, req ChatRequest, w ChunkWriter) (*TurnResult, error) {
	// ReceivingInput
	turn := Turn{Prompt: req.Prompt, Image: req.Image}
	if err := turn.Validate(); err != nil {
		s.Metrics.TurnDone("client_error")
		return nil, &StageError{Stage: StageReceivingInput, Err: err}
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.UserID == "" {
		req.UserID = AnonymousUser
	}

	unlock, err := s.Locker.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, s.fail(StageReceivingInput, classify(err, ErrPersistence))
	}
	defer unlock()

	result := &TurnResult{SessionID: req.SessionID}
	history, err := s.loadHistory(ctx, req)
	if err != nil {
		return nil, s.fail(StageReceivingInput, err)
	}
	if turn.Image != nil {
		turn.Image.Ref = s.storeImage(ctx, req.SessionID, turn.Image)
		result.ImageRef = turn.Image.Ref
	}

	// Rewriting
	start := time.Now()
	rewriteCtx, cancel := s.callCtx(ctx)
	standalone, err := s.Rewriter.Rewrite(rewriteCtx, turn, history)
	cancel()
	s.Metrics.ObserveStage(string(StageRewriting), time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(StageRewriting, err)
	}
	result.Standalone = standalone
	log.Infow("[ChatService] 独立问题已生成", "session_id", req.SessionID, "standalone", standalone)

	// Retrieving
	hotels := s.retrieve(ctx, standalone)
	result.Hits = len(hotels)

	// Responding
	start = time.Now()
	streamCtx, cancelStream := s.streamCtx(ctx)
	defer cancelStream()
	frags := s.Responder.Respond(streamCtx, standalone, history, hotels)
	answer, err := Relay(frags, w, cancelStream)
	s.Metrics.ObserveStage(string(StageResponding), time.Since(start).Seconds())
	result.Answer = answer
	if err != nil {
		// 不完整的回答不写入历史
		return result, s.fail(StageResponding, classify(err, ErrCompletion))
	}

	// Persisting
	s.persist(req, turn, history, result)
	if result.Persisted {
		s.Metrics.TurnDone("ok")
	} else {
		s.Metrics.TurnDone("persist_error")
	}
	return result, nil
}

func (s *chatService) fail(stage Stage, err error) error {
	log.Errorw("[ChatService] 轮次失败", "stage", stage, "error", err)
	s.Metrics.TurnDone("error")
	return &StageError{Stage: stage, Err: err}
}

func (s *chatService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *chatService) streamCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StreamTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.StreamTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *chatService) loadHistory(ctx context.Context, req ChatRequest) (*model.ChatHistory, error) {
	loadCtx, cancel := s.callCtx(ctx)
	defer cancel()
	return s.History.Load(loadCtx, req.SessionID, req.UserID, req.History)
}

// storeImage 保存图片，失败时退化为内联引用，不影响本轮回答。
func (s *chatService) storeImage(ctx context.Context, sessionID string, img *ImageInput) string {
	inline := "inline:" + img.Filename
	if s.Images == nil {
		return inline
	}
	saveCtx, cancel := s.callCtx(ctx)
	defer cancel()
	ref, err := s.Images.SaveImage(saveCtx, sessionID, img.Filename, img.Data)
	if err != nil {
		log.Warnw("[ChatService] 图片保存失败，使用内联引用", "session_id", sessionID, "error", err)
		return inline
	}
	return ref
}

// retrieve 执行 hybrid 检索。失败或超时时返回空上下文。
func (s *chatService) retrieve(ctx context.Context, standalone string) []model.Hotel {
	start := time.Now()
	searchCtx, cancel := s.callCtx(ctx)
	defer cancel()
	hotels, err := s.Retriever.Search(searchCtx, model.RetrievalQuery{
		Text:                  standalone,
		K:                     s.opts.TopK,
		SemanticConfiguration: s.opts.SemanticConfiguration,
		Mode:                  model.SearchHybrid,
	})
	s.Metrics.ObserveStage(string(StageRetrieving), time.Since(start).Seconds())
	if err != nil {
		log.Warnw("[ChatService] 检索失败，使用空上下文继续", "error", classify(err, ErrRetrieval))
		return nil
	}
	s.Metrics.Retrieved(len(hotels))
	return hotels
}

// persist 追加本轮问答并保存。请求可能已经结束，使用独立的 ctx。
func (s *chatService) persist(req ChatRequest, turn Turn, history *model.ChatHistory, result *TurnResult) {
	start := time.Now()
	parts := []model.Part{model.TextPart(result.Standalone)}
	if turn.Image != nil && turn.Image.Ref != "" {
		parts = append(parts, model.ImagePart(turn.Image.Ref))
	}
	history.AddUser(parts...)
	history.AddAssistant(result.Answer)

	saveCtx, cancel := s.callCtx(context.Background())
	defer cancel()
	if err := s.History.Save(saveCtx, history); err != nil {
		result.PersistErr = err
		log.Errorw("[ChatService] 保存会话历史失败", "session_id", req.SessionID, "error", err)
	} else {
		result.Persisted = true
	}
	s.Metrics.ObserveStage(string(StagePersisting), time.Since(start).Seconds())

	if s.Publisher == nil {
		return
	}
	question := req.Prompt
	if question == "" && turn.Image != nil {
		question = "[image: " + turn.Image.Ref + "]"
	}
	ev := events.TurnEvent{
		ID:         uuid.NewString(),
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		Question:   question,
		Standalone: result.Standalone,
		Answer:     result.Answer,
		ImageRef:   result.ImageRef,
		Persisted:  result.Persisted,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.Publisher.PublishTurn(saveCtx, ev); err != nil {
		log.Warnw("[ChatService] 发布轮次事件失败", "session_id", req.SessionID, "error", err)
	}
}
