package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type preloadBootRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// handlePreloadBoot handles POST /preload_boot: spawns async warm-up of
// context/heartbeat/prompt material and returns immediately, per
// spec.md §4.7/§5's 2s-budget-then-defer preload contract.
func (s *Server) handlePreloadBoot(c *gin.Context) {
	var req preloadBootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serializationErr(err.Error()))
		return
	}

	s.current().PreloadBoot(req.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}
