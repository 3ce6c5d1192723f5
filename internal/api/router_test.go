package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/api/handlers"
	"fiscal-offline-go/internal/api/middleware"
	"fiscal-offline-go/internal/cache"
	"fiscal-offline-go/internal/connectivity"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/server/sse"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idleSyncer struct{}

func (idleSyncer) ProcessQueue(context.Context) (*models.BatchSyncResult, bool) {
	return &models.BatchSyncResult{}, true
}

func (idleSyncer) IsActive() bool { return false }

func newTestRouter(t *testing.T, cfg config.ServerConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	translator, err := middleware.NewTranslator("en")
	require.NoError(t, err)

	manager := queue.NewManager(queue.NewMemoryStore(), config.DefaultQueueConfig(), nil)
	h := handlers.NewAPIHandler(manager, idleSyncer{}, cache.NewStore(0), connectivity.NewMonitor(true, nil), sse.NewHub())
	return NewRouter(cfg, h, nil, translator)
}

func TestRouter_HealthAndRoutes(t *testing.T) {
	router := newTestRouter(t, config.ServerConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	router := newTestRouter(t, config.ServerConfig{CORSOrigins: []string{"http://pos.local"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/queue/stats", nil)
	req.Header.Set("Origin", "http://pos.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://pos.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
