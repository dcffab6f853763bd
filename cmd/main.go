package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vantler/adcomply-backend/internal/clients/gcp"
	redisclient "github.com/vantler/adcomply-backend/internal/clients/redis"
	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/content"
	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/db"
	"github.com/vantler/adcomply-backend/internal/handlers"
	jobsbypass "github.com/vantler/adcomply-backend/internal/jobs/bypass"
	"github.com/vantler/adcomply-backend/internal/jobs/runtime"
	"github.com/vantler/adcomply-backend/internal/jobs/worker"
	"github.com/vantler/adcomply-backend/internal/modules/scan"
	"github.com/vantler/adcomply-backend/internal/observability"
	"github.com/vantler/adcomply-backend/internal/platform/envutil"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
	"github.com/vantler/adcomply-backend/internal/server"
	"github.com/vantler/adcomply-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "adcomply-backend",
		Environment: envutil.GetEnv("APP_ENV", "development", log),
		Version:     envutil.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOtel != nil {
		defer func() {
			shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shCancel()
			_ = shutdownOtel(shCtx)
		}()
	}

	// Postgres
	log.Info("Connecting to Postgres from main...")
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	ruleRepo := rules.NewRuleRepo(thePG, log)
	assignmentRepo := rules.NewRuleAssignmentRepo(thePG, log)
	overrideRepo := rules.NewRuleOverrideRepo(thePG, log)
	contentItemRepo := content.NewContentItemRepo(thePG, log)
	advertiserRepo := content.NewAdvertiserRepo(thePG, log)
	productRepo := content.NewProductRepo(thePG, log)
	flagRepo := compliance.NewFlagRepo(thePG, log)
	auditRepo := compliance.NewAuditLogRepo(thePG, log)
	settingsRepo := compliance.NewBypassSettingsRepo(thePG, log)
	exampleRepo := compliance.NewReviewExampleRepo(thePG, log)
	aiCallLogRepo := ops.NewAICallLogRepo(thePG, log)
	jobRunRepo := ops.NewJobRunRepo(thePG, log)

	// Model client + throttler + gateway
	log.Info("Setting up model gateway from main...")
	modelClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Model client init failed", "error", err)
		os.Exit(1)
	}
	throttleCfg, err := services.LoadThrottleConfig(log)
	if err != nil {
		log.Error("Throttle config load failed", "error", err)
		os.Exit(1)
	}
	throttler := services.NewCallThrottler(log, throttleCfg)
	gateway := services.NewModelGateway(log, modelClient, throttler, aiCallLogRepo)

	// Optional collaborators
	var embedCache redisclient.EmbeddingCache
	if os.Getenv("REDIS_ADDR") != "" {
		embedCache, err = redisclient.NewEmbeddingCache(log)
		if err != nil {
			log.Warn("Redis embedding cache unavailable, librarian will re-embed", "error", err)
			embedCache = nil
		} else {
			defer embedCache.Close()
		}
	}
	var mediaStore gcp.MediaStore
	if envutil.GetEnvAsBool("MEDIA_STORE_ENABLED", false, log) {
		mediaStore, err = gcp.NewMediaStore(log)
		if err != nil {
			log.Warn("Media store unavailable, visual extraction will be text-only", "error", err)
			mediaStore = nil
		} else {
			defer mediaStore.Close()
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	librarian := services.NewLibrarian(log, exampleRepo, gateway, embedCache)
	bypassEngine := services.NewBypassEngine(thePG, log, settingsRepo, flagRepo, auditRepo, ruleRepo, jobRunRepo)
	revertEngine := services.NewRevertEngine(thePG, log, flagRepo, auditRepo)
	scanService := scan.NewService(scan.Deps{
		DB:           thePG,
		Log:          log,
		Gateway:      gateway,
		Librarian:    librarian,
		Bypass:       bypassEngine,
		Media:        mediaStore,
		ContentItems: contentItemRepo,
		Advertisers:  advertiserRepo,
		Products:     productRepo,
		Rules:        ruleRepo,
		Assignments:  assignmentRepo,
		Overrides:    overrideRepo,
		Flags:        flagRepo,
		Audit:        auditRepo,
	})

	// Job worker
	log.Info("Setting up job worker from main...")
	registry := runtime.NewRegistry()
	if err := registry.Register(jobsbypass.NewRetroApplyHandler(log, bypassEngine)); err != nil {
		log.Error("Job handler registration failed", "error", err)
		os.Exit(1)
	}
	jobWorker := worker.NewWorker(thePG, log, jobRunRepo, registry)
	jobWorker.Start(ctx)

	// Router
	router := server.NewRouter(server.RouterConfig{
		Log:           log,
		ScanHandler:   handlers.NewScanHandler(scanService),
		BypassHandler: handlers.NewBypassHandler(bypassEngine, revertEngine),
		AuditHandler:  handlers.NewAuditHandler(auditRepo),
	})

	port := envutil.GetEnv("PORT", "8080", log)
	log.Info("Starting HTTP server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("HTTP server exited", "error", err)
		os.Exit(1)
	}
}
