package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tekpossible/ems/server/categorize"
	"github.com/tekpossible/ems/server/config"
	"github.com/tekpossible/ems/server/database"
	"github.com/tekpossible/ems/server/ingest"
	"github.com/tekpossible/ems/server/storage"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// apiServer bundles the dependencies the HTTP handlers work against.
type apiServer struct {
	db    *database.Database
	st    *storage.Storage
	rules *categorize.Cache

	presence    presenceTracker
	activity    activityIngestor
	screenshots screenshotIngestor

	maxUploadBytes  int64
	activeThreshold time.Duration
}

func newRouter(s *apiServer, logger *zap.Logger, agentAPIKey string) *gin.Engine {
	router := gin.New()
	router.Use(loggerMiddleware(logger), gin.Recovery())
	router.MaxMultipartMemory = s.maxUploadBytes

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Agent-facing ingestion endpoints, authenticated by shared key.
	agentAPI := router.Group("/api", apiKeyMiddleware(agentAPIKey))
	{
		agentAPI.POST("/heartbeat", s.heartbeatHandler)
		agentAPI.POST("/log/activity", s.logActivityHandler)
		agentAPI.POST("/upload/screenshot", s.uploadScreenshotHandler)
	}

	// Dashboard-facing read and admin endpoints.
	api := router.Group("/api")
	{
		api.GET("/employees", s.getEmployeesHandler)
		api.GET("/employees/active", s.getActiveEmployeesHandler)
		api.GET("/employees/pending_count", s.getPendingRenameCountHandler)

		// Single-employee routes live under /employee to keep the static
		// /employees/* paths out of the wildcard's way.
		api.GET("/employee/:employee_id", s.getEmployeeHandler)
		api.PATCH("/employee/:employee_id", s.updateEmployeeHandler)
		api.DELETE("/employee/:employee_id", s.deleteEmployeeHandler)
		api.GET("/employee/:employee_id/activity", s.getEmployeeActivityHandler)
		api.GET("/employee/:employee_id/screenshots", s.getEmployeeScreenshotsHandler)

		api.GET("/activity/recent", s.getRecentActivityHandler)
		api.GET("/screenshots/:key/download", s.downloadScreenshotHandler)

		api.GET("/categories", s.getCategoriesHandler)
		api.POST("/categories", s.createCategoryHandler)
		api.PUT("/categories/:id", s.updateCategoryHandler)
		api.DELETE("/categories/:id", s.deleteCategoryHandler)

		api.GET("/rules", s.getRulesHandler)
		api.POST("/rules", s.createRuleHandler)
		api.PUT("/rules/:id", s.updateRuleHandler)
		api.DELETE("/rules/:id", s.deleteRuleHandler)
	}

	return router
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the server config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Server.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	zapctx.SetFallback(logger)

	if cfg.Server.AgentAPIKey == "" {
		logger.Fatal("agent_api_key must be set; refusing to start with unauthenticated ingestion")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.Database.URI, cfg.Database.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close(context.Background())

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to prepare database schema", zap.Error(err))
	}

	st, err := storage.New(ctx,
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.UseSSL,
		cfg.Storage.ScreenshotsBucket,
	)
	if err != nil {
		logger.Fatal("Failed to connect to blob storage", zap.Error(err))
	}

	rules := categorize.NewCache(db, cfg.Ingest.RuleCacheTTL())

	s := &apiServer{
		db:    db,
		st:    st,
		rules: rules,
		presence: &ingest.PresenceTracker{
			Store: db,
		},
		activity: &ingest.ActivityIngestor{
			Store:       db,
			Presence:    db,
			Categorizer: rules,
		},
		screenshots: &ingest.ScreenshotIngestor{
			Blobs:    st,
			Store:    db,
			Presence: db,
			MaxBytes: cfg.Ingest.MaxUploadBytes(),
		},
		maxUploadBytes:  cfg.Ingest.MaxUploadBytes(),
		activeThreshold: time.Duration(cfg.Ingest.ActiveThresholdMinutes) * time.Minute,
	}

	router := newRouter(s, logger, cfg.Server.AgentAPIKey)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", zap.String("address", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
