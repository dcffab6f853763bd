package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vantler/adcomply-backend/internal/handlers"
	"github.com/vantler/adcomply-backend/internal/middleware"
	"github.com/vantler/adcomply-backend/internal/platform/envutil"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log           *logger.Logger
	ScanHandler   *handlers.ScanHandler
	BypassHandler *handlers.BypassHandler
	AuditHandler  *handlers.AuditHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := envutil.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", cfg.Log)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(origins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.Use(middleware.RequestAttribution(cfg.Log))

	router.GET("/healthcheck", handlers.HealthCheck)

	authKey := envutil.GetEnv("AUTH_API_KEY", "", cfg.Log)
	auth := middleware.NewAuthMiddleware(cfg.Log, authKey)

	api := router.Group("/api")
	api.Use(auth.RequireKey())
	{
		api.POST("/content/:id/scan", cfg.ScanHandler.ScanContentItem)
		api.GET("/orgs/:id/bypass-settings", cfg.BypassHandler.GetSettings)
		api.PUT("/orgs/:id/bypass-settings", cfg.BypassHandler.UpdateSettings)
		api.POST("/orgs/:id/bypass-revert", cfg.BypassHandler.RevertLastChange)
		api.GET("/orgs/:id/audit", cfg.AuditHandler.ListAuditTrail)
	}

	return router
}
