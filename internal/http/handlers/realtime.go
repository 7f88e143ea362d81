package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eddykim0118/kivo/internal/http/response"
	"github.com/eddykim0118/kivo/internal/platform/ctxutil"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/realtime"
)

const heartbeatInterval = 15 * time.Second

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/events streams the caller's job transitions as server-sent events.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		response.AbortUnauthorized(c, "not authenticated")
		return
	}
	client := h.hub.Subscribe(rd.UserID)
	defer h.hub.CloseClient(client)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case ev, ok := <-client.Outbound:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		}
	})
}
