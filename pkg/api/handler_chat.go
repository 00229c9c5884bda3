package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
)

type processTextRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Query  string `json:"query" binding:"required"`
}

// handleProcessText handles POST /process_text, a one-shot text turn.
// Each call is tagged with a trace id for log correlation, the same role
// the teacher's services assign a fresh uuid.New().String() session/chat
// id for each request.
func (s *Server) handleProcessText(c *gin.Context) {
	var req processTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serializationErr(err.Error()))
		return
	}

	traceID := uuid.New().String()
	log := slog.With("trace_id", traceID, "user_id", req.UserID)
	log.Info("process_text started")

	answer, err := s.current().ProcessText(c.Request.Context(), req.UserID, req.Query)
	if err != nil {
		log.Error("process_text failed", "error", err)
		writeError(c, runtimeErr(err.Error()))
		return
	}

	log.Info("process_text completed")
	c.JSON(http.StatusOK, gin.H{"answer": answer, "trace_id": traceID})
}

// handleProcessTextStream handles POST /process_text_stream, streaming a
// text turn as text/plain chunks. On a fatal mid-stream error it injects
// "\n[error] <msg>" before closing, per spec.md §7.
func (s *Server) handleProcessTextStream(c *gin.Context) {
	var req processTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, serializationErr(err.Error()))
		return
	}

	events, err := s.current().ProcessTextStream(c.Request.Context(), req.UserID, req.Query)
	if err != nil {
		writeError(c, runtimeErr(err.Error()))
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		switch ev.EventType {
		case llm.ChatEventContent:
			_, _ = w.Write([]byte(ev.Delta))
		case llm.ChatEventError:
			msg := ""
			if ev.Error != nil {
				msg = ev.Error.Error()
			}
			_, _ = w.Write([]byte("\n[error] " + msg))
			return false
		case llm.ChatEventMessageEnd:
			return false
		}
		return true
	})
}
