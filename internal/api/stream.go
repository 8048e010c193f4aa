package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// streamRetry is the reconnect delay suggested to EventSource clients
const streamRetry = 2 * time.Second

// streamEvents serves a store's realtime events as server-sent events. The
// first event is always a snapshot of the store's open checks.
func (h *Handler) streamEvents(c *gin.Context) {
	storeID := c.Param("store")
	client := c.Query("client")
	if client == "" {
		client = c.ClientIP()
	}

	sub, err := h.broadcaster.Subscribe(storeID, client)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": err.Error(),
		})
		return
	}
	defer h.broadcaster.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	_, _ = io.WriteString(c.Writer, ": connected\n\n")
	_, _ = io.WriteString(c.Writer, "retry: "+formatMillis(streamRetry)+"\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case env, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent("message", env)
			return true
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return false
			}
			return true
		}
	})

	h.logger.Debug("Event stream closed",
		zap.String("store_id", storeID),
		zap.String("subscriber_id", sub.ID))
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
