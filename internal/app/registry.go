package app

import (
	"database/sql"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/integrity"
	"rollcall/internal/linker"
	"rollcall/internal/messaging/kafka"
	"rollcall/internal/middleware"
	"rollcall/internal/registry"
	"rollcall/internal/report"
	"rollcall/internal/run"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
	cfg config.Engine,
) error {
	// --- Repositories ---
	reportRepo := report.NewRepository(gormDB, db)
	outboxRepo := kafka.NewOutboxRepository(db)

	// --- Engine stages ---
	ingestor := ingest.NewService(cfg.AdjacentDayFallback)
	builder := registry.NewBuilder()
	cache := registry.NewCache(rdb, cfg.RegistryCacheTTL, time.Now)
	linkService := linker.NewService()
	classifier := classify.NewService(cfg)
	enforcer := integrity.NewEnforcer(cfg)

	// --- Services ---
	runService := run.NewService(
		db, reportRepo, outboxRepo,
		ingestor, builder, cache,
		linkService, classifier, enforcer,
		cfg,
	)

	// --- Handlers ---
	runHandler := run.NewHandler(runService)

	// --- Routes Registration ---
	router.Use(middleware.RequestID())
	router.Use(middleware.ContextLogger(zap.L()))

	api := router.Group("/api/v1")
	{
		run.RegisterRoutes(api, runHandler)
	}

	return nil
}
