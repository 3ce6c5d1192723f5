package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fiscal-offline-go/internal/api/middleware"
	"fiscal-offline-go/internal/cache"
	"fiscal-offline-go/internal/connectivity"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/server/sse"
	"fiscal-offline-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Syncer führt Synchronisationsdurchläufe aus
type Syncer interface {
	ProcessQueue(ctx context.Context) (*models.BatchSyncResult, bool)
	IsActive() bool
}

// APIHandler behandelt die lokale Steuer-API für Warteschlange, Cache und Verbindung
type APIHandler struct {
	manager *queue.Manager
	engine  Syncer
	cache   *cache.Store
	monitor *connectivity.Monitor
	sseHub  *sse.Hub
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(manager *queue.Manager, engine Syncer, cacheStore *cache.Store, monitor *connectivity.Monitor, sseHub *sse.Hub) *APIHandler {
	return &APIHandler{
		manager: manager,
		engine:  engine,
		cache:   cacheStore,
		monitor: monitor,
		sseHub:  sseHub,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Warteschlange
	router.GET("/queue/stats", h.GetQueueStats)
	router.GET("/queue/operations", h.ListOperations)
	router.POST("/queue/operations", h.CreateOperation)
	router.GET("/queue/operations/:id", h.GetOperation)
	router.POST("/queue/operations/:id/retry", h.RetryOperation)
	router.DELETE("/queue/operations/:id", h.DeleteOperation)

	// Synchronisation und Verbindung
	router.POST("/sync", h.Sync)
	router.GET("/connectivity", h.GetConnectivity)
	router.POST("/connectivity", h.SetConnectivity)

	// Cache
	router.GET("/cache/stats", h.GetCacheStats)
	router.DELETE("/cache", h.InvalidateCache)

	// System
	router.GET("/events", h.StreamEvents)
	router.GET("/system", h.GetSystemStats)
}

// GetQueueStats liefert die Zähler je Status
func (h *APIHandler) GetQueueStats(c *gin.Context) {
	stats, err := h.manager.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":       stats,
		"sync_active": h.engine.IsActive(),
	})
}

// ListOperations listet Operationen in Entnahme-Reihenfolge, optional per ?status=a,b gefiltert
func (h *APIHandler) ListOperations(c *gin.Context) {
	var statuses []string
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(strings.ToLower(s))
			switch s {
			case models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
				statuses = append(statuses, s)
			default:
				c.JSON(http.StatusBadRequest, gin.H{
					"error": middleware.T(c, "invalid_request", gin.H{"Detail": fmt.Sprintf("unknown status %q", s)}),
				})
				return
			}
		}
	}

	ops, err := h.manager.List(c.Request.Context(), statuses...)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operations": ops,
		"count":      len(ops),
	})
}

// GetOperation liefert eine einzelne Operation
func (h *APIHandler) GetOperation(c *gin.Context) {
	id := c.Param("id")
	op, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, op)
}

// CreateOperation nimmt eine mutierende Anfrage direkt in die Warteschlange auf
func (h *APIHandler) CreateOperation(c *gin.Context) {
	var req queue.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": middleware.T(c, "invalid_request", gin.H{"Detail": err.Error()}),
		})
		return
	}

	op, err := h.manager.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, op)
}

// RetryOperation legt eine fehlgeschlagene Operation als neue Operation wieder an
func (h *APIHandler) RetryOperation(c *gin.Context) {
	id := c.Param("id")
	op, err := h.manager.Requeue(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, id)
		return
	}

	log.WithFields(log.Fields{
		"operation_id": id,
		"requeued_as":  op.ID,
	}).Info("Failed operation requeued via API")
	c.JSON(http.StatusCreated, op)
}

// DeleteOperation löscht eine abgeschlossene Operation
func (h *APIHandler) DeleteOperation(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Remove(c.Request.Context(), id); err != nil {
		h.respondError(c, err, id)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sync führt einen Durchlauf synchron aus und liefert dessen Ergebnis
func (h *APIHandler) Sync(c *gin.Context) {
	if h.monitor != nil && !h.monitor.IsOnline() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": middleware.T(c, "offline", nil)})
		return
	}

	result, ran := h.engine.ProcessQueue(c.Request.Context())
	if !ran {
		c.JSON(http.StatusConflict, gin.H{"error": middleware.T(c, "sync_active", nil)})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetConnectivity liefert den aktuellen Verbindungsstatus
func (h *APIHandler) GetConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Status())
}

// SetConnectivity setzt den Verbindungsstatus manuell, z.B. aus einem Netzwerk-Hook
func (h *APIHandler) SetConnectivity(c *gin.Context) {
	var body struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": middleware.T(c, "invalid_request", gin.H{"Detail": err.Error()}),
		})
		return
	}

	h.monitor.SetOnline(*body.Online, "api")
	c.JSON(http.StatusOK, h.monitor.Status())
}

// GetCacheStats liefert die Zähler des Ressourcen-Caches
func (h *APIHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

// InvalidateCache entfernt Einträge zu ?pattern= oder den gesamten Cache
func (h *APIHandler) InvalidateCache(c *gin.Context) {
	pattern := c.Query("pattern")

	var evicted int
	if pattern == "" {
		evicted = h.cache.Len()
		h.cache.Clear()
	} else {
		evicted = h.cache.Evict(pattern)
	}

	log.WithFields(log.Fields{
		"pattern": pattern,
		"evicted": evicted,
	}).Info("Cache invalidated via API")
	c.JSON(http.StatusOK, gin.H{"evicted": evicted})
}

// GetSystemStats liefert Laufzeitdaten des Prozesses
func (h *APIHandler) GetSystemStats(c *gin.Context) {
	stats, err := h.manager.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, utils.GetSystemStats(stats, h.sseHub.ClientCount()))
}

// respondError bildet Fehler der Warteschlange auf HTTP-Statuscodes ab
func (h *APIHandler) respondError(c *gin.Context, err error, id string) {
	var full *queue.QueueFullError

	switch {
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "operation_not_found", gin.H{"ID": id})})
	case errors.Is(err, queue.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":  middleware.T(c, "invalid_transition", gin.H{"ID": id}),
			"detail": err.Error(),
		})
	case errors.As(err, &full):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    middleware.T(c, "queue_full", nil),
			"max_size": full.MaxSize,
		})
	case errors.Is(err, queue.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "invalid_request", gin.H{"Detail": err.Error()})})
	default:
		log.WithError(err).Errorf("API request %s %s failed", c.Request.Method, c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  middleware.T(c, "internal_error", nil),
			"detail": err.Error(),
		})
	}
}
