// Package api baut den gin-Router der lokalen Steuer-API.
package api

import (
	"net/http"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/api/handlers"
	"fiscal-offline-go/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter erstellt den Router mit Recovery, Logging, CORS und i18n
func NewRouter(cfg config.ServerConfig, h *handlers.APIHandler, proxy *handlers.ProxyHandler, translator *middleware.Translator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	router.Use(middleware.I18n(translator))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	h.RegisterRoutes(api)
	if proxy != nil {
		proxy.RegisterRoutes(api)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Accept-Language"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
