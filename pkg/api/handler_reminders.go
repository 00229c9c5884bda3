package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const reminderPollInterval = 5 * time.Second

// handleReminderStream handles GET /reminder_stream?user_id=...: an SSE
// stream of due reminders. Polls store.ReminderStore.PeekDue (the
// non-marking peek used elsewhere for prompt injection) on a fixed
// interval and pushes each reminder id not already sent on this
// connection, following the same "data: {json}\n\n" wire format as
// /ui_events.
func (s *Server) handleReminderStream(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, serializationErr("user_id is required"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	seen := make(map[int64]bool)
	ticker := time.NewTicker(reminderPollInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ticker.C:
			due, err := s.current().Reminders().PeekDue(c.Request.Context(), userID, time.Now().Unix(), 20)
			if err != nil {
				return true
			}
			for _, r := range due {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
				payload, err := json.Marshal(r)
				if err != nil {
					continue
				}
				writeSSE(w, payload)
			}
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
