package handler

import (
	"net/http"

	"hotel-rag-go/internal/middleware"
	"hotel-rag-go/internal/repository"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/metrics"
	"hotel-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RouterDeps 是注册路由所需的依赖。JWT 为 nil 表示未启用认证。
type RouterDeps struct {
	Chat          service.ChatService
	Retriever     service.Retriever
	History       *service.HistoryService
	Conversations repository.ConversationRepository
	Presigner     ImagePresigner
	JWT           *token.JWTManager
	Metrics       *metrics.Metrics
	MaxImageBytes int64
}

// NewRouter 创建 gin 引擎并注册全部路由。
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.Metrics(deps.Metrics))

	identity := middleware.HeaderIdentity()
	var tokens TokenVerifier
	if deps.JWT != nil {
		identity = middleware.AuthMiddleware(deps.JWT)
		tokens = deps.JWT
	}

	chatHandler := NewChatHandler(deps.Chat, tokens, deps.MaxImageBytes)
	conversationHandler := NewConversationHandler(deps.History, deps.Conversations, deps.Presigner)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	apiV1.Use(identity)
	{
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.GET("/search", NewSearchHandler(deps.Retriever).Search)

		sessions := apiV1.Group("/sessions/:id")
		{
			sessions.GET("/history", conversationHandler.GetHistory)
			sessions.GET("/conversations", conversationHandler.GetArchive)
		}
	}

	// Chat 路由 (WebSocket)，token 在路径中
	ws := r.Group("/chat")
	if deps.JWT == nil {
		ws.Use(identity)
	}
	ws.GET("/:token", chatHandler.Handle)
	return r
}
