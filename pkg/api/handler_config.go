package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/config"
)

// handleFactoryResetConfig handles POST /factory_reset_config: writes
// the embedded convention-default configuration document to
// <config_dir>/butterfly.yaml, overwriting any existing override. The
// running agent handle is left untouched until a subsequent
// /reload_config.
func (s *Server) handleFactoryResetConfig(c *gin.Context) {
	s.mu.RLock()
	configDir := s.configDir
	s.mu.RUnlock()

	if configDir == "" {
		writeError(c, configErr("no config directory configured"))
		return
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		writeError(c, configErr(err.Error()))
		return
	}

	path := filepath.Join(configDir, "butterfly.yaml")
	if err := os.WriteFile(path, config.BuiltinDefaults(), 0o644); err != nil {
		writeError(c, configErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "path": path})
}

// handleReloadConfig handles POST /reload_config: reloads configuration
// from configDir, builds a new agent handle via the entrypoint-supplied
// factory, and atomically swaps it in behind the Server's write lock —
// the reader-writer snapshot spec.md §5 requires for "the current agent
// handle".
func (s *Server) handleReloadConfig(c *gin.Context) {
	s.mu.RLock()
	configDir := s.configDir
	build := s.build
	s.mu.RUnlock()

	if build == nil {
		writeError(c, configErr("no orchestrator factory configured"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		writeError(c, configErr(err.Error()))
		return
	}

	newOrch, err := build(cfg)
	if err != nil {
		writeError(c, runtimeErr(err.Error()))
		return
	}

	s.mu.Lock()
	s.cfg = cfg
	s.orch = newOrch
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
