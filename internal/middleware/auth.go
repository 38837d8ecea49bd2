// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"hotel-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const (
	// SessionHeader 携带会话 ID，响应中原样回显。
	SessionHeader = "X-Session-ID"
	// UserHeader 在未启用认证时用于标识用户。
	UserHeader = "X-User-ID"

	// AnonymousUser 是既没有 token 也没有 X-User-ID 时的用户 ID。
	AnonymousUser = "anonymous"

	claimsKey = "claims"
	userIDKey = "userID"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将 claims 和用户 ID 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}
		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// HeaderIdentity 在未启用认证时使用，从 X-User-ID 读取用户 ID。
func HeaderIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserHeader)); id != "" {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

// UserID 返回当前请求的用户 ID。
func UserID(c *gin.Context) string {
	if id := c.GetString(userIDKey); id != "" {
		return id
	}
	return AnonymousUser
}

// Claims 返回认证后的 claims，未认证时返回 nil。
func Claims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}

// SetUserID 供不经过 Authorization 头认证的入口（如 websocket 路径 token）使用。
func SetUserID(c *gin.Context, id string) {
	c.Set(userIDKey, id)
}
