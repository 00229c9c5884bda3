package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// writeSSE writes one Server-Sent Events frame in the wire format
// spec.md §6 requires: "data: {json}\n\n".
func writeSSE(w io.Writer, payload []byte) {
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}

// handleUIEvents handles GET /ui_events: an SSE stream of orchestrator
// UI events, filtered to the requesting user_id. A subscriber that falls
// behind the bus's bounded buffer is dropped and must resubscribe
// (reconnect) rather than receiving a fatal error, per spec.md §5.
func (s *Server) handleUIEvents(c *gin.Context) {
	userID := c.Query("user_id")

	events, unsubscribe := s.current().Bus().Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if userID != "" && ev.UserID != userID {
				return true
			}
			payload, err := ev.JSON()
			if err != nil {
				return true
			}
			writeSSE(w, payload)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
