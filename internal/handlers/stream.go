package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const streamHeartbeat = 25 * time.Second

// streamEvents writes server-sent events until the client leaves or updates
// closes. initial, when set, is sent first; render turns each update into the
// payload of one event.
func streamEvents[T any](
	c *gin.Context,
	logger *zap.Logger,
	event string,
	initial func() (any, error),
	updates <-chan T,
	render func(T) (any, error),
) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	send := func(load func() (any, error)) bool {
		payload, err := load()
		if err != nil {
			logger.Warn("Failed to render stream event", zap.String("event", event), zap.Error(err))
			c.SSEvent("error", gin.H{"message": "stream interrupted"})
			return false
		}
		c.SSEvent(event, payload)
		return true
	}

	if initial != nil {
		if !send(initial) {
			return
		}
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case update, ok := <-updates:
			if !ok {
				return false
			}
			return send(func() (any, error) { return render(update) })
		}
	})
}
