package handler

import (
	"net/http"
	"strconv"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/internal/service"
	"hotel-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	retriever service.Retriever
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retriever service.Retriever) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

// Search 处理 GET /api/v1/search?query=&mode=&k=，直接返回检索到的酒店。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到搜索请求, query: %s", query)
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数", "data": nil})
		return
	}
	mode, err := model.ParseSearchMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	rawK := c.Query("k")
	if rawK == "" {
		rawK = c.DefaultQuery("topK", "0")
	}
	topK, err := strconv.Atoi(rawK)
	if err != nil || topK < 0 {
		topK = 0
	}

	hotels, err := h.retriever.Search(c.Request.Context(), model.RetrievalQuery{
		Text:                  query,
		K:                     topK,
		SemanticConfiguration: c.Query("semantic_configuration"),
		Mode:                  mode,
	})
	if err != nil {
		log.Errorf("[SearchHandler] 搜索服务返回错误, error: %v", err)
		status, msg := StatusFor(err)
		c.JSON(status, gin.H{"code": status, "message": msg, "data": nil})
		return
	}

	log.Infof("[SearchHandler] 搜索成功, query: '%s', 返回 %d 条结果", query, len(hotels))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": hotels})
}
