package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"fiscal-offline-go/internal/api/middleware"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/services/offline"
	"fiscal-offline-go/internal/transport"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// PriorityHeader setzt die Priorität einer Mutation, die in die Warteschlange geht
const PriorityHeader = "X-Queue-Priority"

// Gateway ist der Offline-Client aus Sicht des Proxys
type Gateway interface {
	Submit(ctx context.Context, m offline.Mutation) (*offline.SubmitResult, error)
	Read(ctx context.Context, rawURL string, params map[string]string) (*transport.Response, bool, error)
}

// ProxyHandler reicht Anfragen unter /api/proxy/* an die Fiskal-API weiter.
// Lesende Anfragen laufen über den Cache, schreibende werden offline eingereiht.
type ProxyHandler struct {
	gateway Gateway
}

// NewProxyHandler erstellt einen neuen Proxy-Handler
func NewProxyHandler(gateway Gateway) *ProxyHandler {
	return &ProxyHandler{gateway: gateway}
}

// RegisterRoutes registriert die Proxy-Routen
func (h *ProxyHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/proxy/*path", h.Read)
	router.POST("/proxy/*path", h.Submit)
	router.PUT("/proxy/*path", h.Submit)
	router.PATCH("/proxy/*path", h.Submit)
	router.DELETE("/proxy/*path", h.Submit)
}

// Read beantwortet eine lesende Anfrage aus dem Cache oder von der API
func (h *ProxyHandler) Read(c *gin.Context) {
	resp, hit, err := h.gateway.Read(c.Request.Context(), upstreamURL(c), nil)
	if err != nil {
		if errors.Is(err, offline.ErrOffline) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": middleware.T(c, "offline_uncached", nil)})
			return
		}
		respondTransportError(c, err)
		return
	}

	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	writeUpstream(c, resp)
}

// Submit führt eine Mutation aus oder reiht sie ein (202 Accepted)
func (h *ProxyHandler) Submit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "invalid_request", gin.H{"Detail": err.Error()})})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "invalid_request", gin.H{"Detail": "body is not valid JSON"})})
		return
	}

	m := offline.Mutation{
		Method: c.Request.Method,
		URL:    upstreamURL(c),
	}
	if len(body) > 0 {
		m.Payload = json.RawMessage(body)
	}
	if raw := c.GetHeader(PriorityHeader); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "invalid_request", gin.H{"Detail": PriorityHeader + " must be an integer"})})
			return
		}
		m.Priority = priority
	}

	result, err := h.gateway.Submit(c.Request.Context(), m)
	if err != nil {
		var full *queue.QueueFullError
		switch {
		case errors.As(err, &full):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": middleware.T(c, "queue_full", nil), "max_size": full.MaxSize})
		case errors.Is(err, queue.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "invalid_request", gin.H{"Detail": err.Error()})})
		default:
			respondTransportError(c, err)
		}
		return
	}

	if result.Queued {
		c.JSON(http.StatusAccepted, gin.H{
			"queued":    true,
			"operation": result.Operation,
		})
		return
	}
	writeUpstream(c, result.Response)
}

// upstreamURL ist der Pfad hinter /proxy mit allen Query-Parametern außer lang.
// Wiederholte Parameter bleiben vollständig erhalten.
func upstreamURL(c *gin.Context) string {
	path := c.Param("path")
	query := c.Request.URL.Query()
	query.Del("lang")
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// writeUpstream gibt die Antwort der API unverändert weiter
func writeUpstream(c *gin.Context, resp *transport.Response) {
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Data(status, contentType, resp.Data)
}

// respondTransportError reicht Ablehnungen der API mit ihrem Status durch
// und meldet Netzwerkfehler als 502
func respondTransportError(c *gin.Context, err error) {
	var te *transport.Error
	if errors.As(err, &te) && te.Kind == transport.KindRemote {
		c.Data(te.Status, "application/json", te.Body)
		return
	}

	log.WithError(err).Warnf("Proxy request %s %s failed", c.Request.Method, c.Request.URL.Path)
	c.JSON(http.StatusBadGateway, gin.H{"error": middleware.T(c, "upstream_unreachable", gin.H{"Detail": err.Error()})})
}
