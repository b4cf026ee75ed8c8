package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/rollstats/internal/api/handlers"
	"github.com/andresuchdata/rollstats/internal/api/middleware"
	"github.com/andresuchdata/rollstats/internal/service"
)

type Services struct {
	SyncService *service.SyncService
	// RemoteBrowser serves /api/drive/*; nil disables it.
	RemoteBrowser http.Handler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	apiGroup := router.Group("/api/v1")
	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services != nil {
		if services.SyncService != nil {
			syncHandler := handlers.NewSyncHandler(services.SyncService)
			syncGroup := apiGroup.Group("/sync")
			{
				syncGroup.GET("/files", syncHandler.GetFiles)
				syncGroup.DELETE("/files/:id", syncHandler.DeleteFile)
				syncGroup.POST("/run", syncHandler.RunSync)
				syncGroup.GET("/status", syncHandler.GetStatus)
			}
			apiGroup.GET("/reports", syncHandler.GetReports)
		}

		if services.RemoteBrowser != nil {
			// The browser router matches on the full path.
			router.Any("/api/drive/*path", gin.WrapH(services.RemoteBrowser))
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
