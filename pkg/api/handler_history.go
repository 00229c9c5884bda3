package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleChatHistory handles GET /chat_history?user_id=...&limit=....
func (s *Server) handleChatHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, serializationErr("user_id is required"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.current().Messages().GetHistory(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, runtimeErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type clearUserHistoryRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// handleClearUserHistory handles POST /clear_user_history: bumps the
// reset watermark and deletes rows for user_id.
func (s *Server) handleClearUserHistory(c *gin.Context) {
	var req clearUserHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serializationErr(err.Error()))
		return
	}

	if err := s.current().Messages().ClearHistory(c.Request.Context(), req.UserID); err != nil {
		writeError(c, runtimeErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type memorySearchRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Query  string `json:"query" binding:"required"`
	K      int    `json:"k"`
}

// handleMemorySearch handles POST /memory_search: FTS + semantic search
// with rerank, delegating entirely to store.MessageStore.Search, which
// already merges and reranks both arms.
func (s *Server) handleMemorySearch(c *gin.Context) {
	var req memorySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serializationErr(err.Error()))
		return
	}
	k := req.K
	if k <= 0 {
		k = 5
	}

	results, err := s.current().Messages().Search(c.Request.Context(), req.UserID, req.Query, k)
	if err != nil {
		writeError(c, runtimeErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
