package handlers

import (
	"net/http"

	"fiscal-offline-go/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StreamEvents hält eine SSE-Verbindung offen und leitet die Ereignisse des
// Hubs weiter, bis der Client trennt oder der Hub beendet wird
func (h *APIHandler) StreamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := make(sse.Client, 10)
	h.sseHub.Register(client)
	defer h.sseHub.Unregister(client)

	// Header sofort senden, damit der Client die Verbindung als offen sieht
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case msg, ok := <-client:
			if !ok {
				return
			}
			c.SSEvent("message", string(msg))
			c.Writer.Flush()
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		}
	}
}
