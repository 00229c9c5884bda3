// Package api implements the C7 HTTP control plane: a thin gin router
// authenticating every non-health endpoint and delegating to the C5
// agent orchestrator, C2 stores, and C3 sandbox registry.
//
// Grounded on cmd/tarsy/main.go's router setup (gin.Default(), a
// directly-registered /health handler) rather than the teacher's
// pkg/api package, which is built on labstack/echo/v5 — a dependency
// this module never carries; see DESIGN.md's C7 grounding decision.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/agent"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/config"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/version"
)

// OrchestratorFactory rebuilds an agent handle from a freshly loaded
// configuration. The entrypoint supplies this so pkg/api never needs to
// know how to wire providers, stores, or the sandbox registry itself —
// it only needs to ask for a new handle and swap it in.
type OrchestratorFactory func(cfg *config.Config) (*agent.Orchestrator, error)

// Server is the C7 control plane: one gin.Engine plus the current agent
// handle, held behind a sync.RWMutex so readers (every in-flight
// request) see a consistent snapshot and /reload_config atomically
// replaces it, per spec.md §5.
type Server struct {
	router *gin.Engine

	mu        sync.RWMutex
	orch      *agent.Orchestrator
	cfg       *config.Config
	configDir string

	db      *database.Client
	build   OrchestratorFactory
	started time.Time
}

// New wires the C7 router: health is unauthenticated, every other route
// requires the configured process token.
func New(cfg *config.Config, configDir string, orch *agent.Orchestrator, db *database.Client, build OrchestratorFactory) *Server {
	s := &Server{
		cfg:       cfg,
		configDir: configDir,
		orch:      orch,
		db:        db,
		build:     build,
		started:   time.Now(),
	}

	router := gin.Default()
	router.Use(securityHeaders())

	router.GET("/health", s.handleHealth)

	authed := router.Group("/", authRequired(cfg.HTTP.AuthToken))
	authed.POST("/process_text", s.handleProcessText)
	authed.POST("/process_text_stream", s.handleProcessTextStream)
	authed.GET("/chat_history", s.handleChatHistory)
	authed.POST("/clear_user_history", s.handleClearUserHistory)
	authed.POST("/memory_search", s.handleMemorySearch)
	authed.POST("/preload_boot", s.handlePreloadBoot)
	authed.GET("/reminder_stream", s.handleReminderStream)
	authed.GET("/ui_events", s.handleUIEvents)
	authed.POST("/doctor", s.handleDoctor)
	authed.POST("/security_audit", s.handleSecurityAudit)
	authed.POST("/factory_reset_config", s.handleFactoryResetConfig)
	authed.POST("/reload_config", s.handleReloadConfig)

	s.router = router
	return s
}

// Router exposes the gin engine for the entrypoint's router.Run call.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) current() *agent.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orch
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.db)
	status := "healthy"
	httpStatus := http.StatusOK
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":   status,
		"database": dbHealth,
		"version":  version.Full(),
	})
}
