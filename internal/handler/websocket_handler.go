package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"hotel-rag-go/internal/middleware"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/log"
	"hotel-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// TokenVerifier 校验 JWT，*token.JWTManager 满足该接口。
type TokenVerifier interface {
	VerifyToken(tokenString string) (*token.CustomClaims, error)
}

// wsFrame 是客户端发送的控制或提问消息。纯文本消息视为 prompt。
type wsFrame struct {
	Type      string `json:"type"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// wsConn 串行化对连接的写入，gorilla/websocket 不允许并发写。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) WriteChunk(text string) error {
	return w.writeJSON(map[string]string{"chunk": text})
}

func notice(kind, status, message string) map[string]interface{} {
	now := time.Now()
	m := map[string]interface{}{
		"type":      kind,
		"message":   message,
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
	if status != "" {
		m["status"] = status
	}
	return m
}

// running 记录连接上正在生成的回答，同一连接同时只允许一个。
type running struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func (r *running) start(cancel context.CancelFunc) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return 0, false
	}
	r.seq++
	r.cancel = cancel
	return r.seq, true
}

func (r *running) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// finish 只清理属于 seq 的回答，stop 之后启动的新回答不受影响。
func (r *running) finish(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq == seq {
		r.cancel = nil
	}
}

// Handle 处理 GET /chat/:token 的 WebSocket 连接。
func (h *ChatHandler) Handle(c *gin.Context) {
	if h.tokens != nil {
		claims, err := h.tokens.VerifyToken(c.Param("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
			return
		}
		middleware.SetUserID(c, claims.UserID)
	}
	userID := middleware.UserID(c)
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}
	log.Infow("WebSocket 连接已建立", "user_id", userID, "session_id", sessionID)

	var (
		current running
		wg      sync.WaitGroup
	)
	defer func() {
		current.stop()
		wg.Wait()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		frame := parseFrame(message)
		if frame.Type == "stop" {
			if current.stop() {
				log.Infow("收到停止指令，正在中断流式响应", "session_id", sessionID)
			}
			_ = ws.writeJSON(notice("stop", "", "响应已停止"))
			continue
		}
		if frame.SessionID != "" {
			sessionID = frame.SessionID
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		seq, ok := current.start(cancel)
		if !ok {
			cancel()
			_ = ws.writeJSON(map[string]string{"error": "上一条回答尚未结束"})
			continue
		}
		req := service.ChatRequest{SessionID: sessionID, UserID: userID, Prompt: frame.Prompt}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			defer current.finish(seq)
			h.answerOverWebsocket(ctx, ws, req)
		}()
	}
}

func (h *ChatHandler) answerOverWebsocket(ctx context.Context, ws *wsConn, req service.ChatRequest) {
	res, err := h.chatService.Answer(ctx, req, ws)
	switch {
	case err == nil:
		_ = ws.writeJSON(notice("completion", "finished", "响应已完成"))
		log.Infow("WebSocket 回答完成", "session_id", res.SessionID, "persisted", res.Persisted)
	case ctx.Err() != nil && !errors.Is(err, service.ErrTimeout):
		// 客户端主动停止或连接关闭
		log.Infow("WebSocket 回答已中断", "session_id", req.SessionID)
	default:
		log.Errorf("处理流式响应失败: %v", err)
		_, msg := StatusFor(err)
		_ = ws.writeJSON(map[string]string{"error": msg})
		_ = ws.writeJSON(notice("completion", "finished", "响应已完成"))
	}
}

func parseFrame(message []byte) wsFrame {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var f wsFrame
		if err := json.Unmarshal([]byte(trimmed), &f); err == nil {
			return f
		}
	}
	return wsFrame{Prompt: string(message)}
}
