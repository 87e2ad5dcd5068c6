package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/integrity"
	"rollcall/internal/linker"
	"rollcall/internal/messaging/kafka"
	"rollcall/internal/registry"
	"rollcall/internal/report"
	"rollcall/internal/run"
	"rollcall/internal/shared/apperror"
	"rollcall/internal/shared/connection"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// reconcile is the batch entrypoint: one invocation runs the full pipeline
// for a date (or range) against explicit feed files and prints the result.
func main() {
	var (
		date      = flag.String("date", "", "target date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "optional inclusive end date for a range")
		telemetry = flag.String("telemetry", "", "comma-separated telemetry feed files")
		activity  = flag.String("activity", "", "comma-separated activity feed files")
		presence  = flag.String("presence", "", "comma-separated presence feed files")
		schedule  = flag.String("schedule", "", "comma-separated schedule feed files")
		roster    = flag.String("roster", "", "comma-separated roster files (overrides ROSTER_PATHS)")
		billing   = flag.String("billing", "", "comma-separated billing files (overrides BILLING_PATHS)")
		timeout   = flag.Duration("timeout", 10*time.Minute, "run timeout")
	)
	flag.Parse()

	_ = godotenv.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	apperror.Init()

	if *date == "" {
		fmt.Fprintln(os.Stderr, "flag -date is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config failed", zap.Error(err))
	}
	if paths := splitPaths(*roster); len(paths) > 0 {
		cfg.RosterPaths = paths
	}
	if paths := splitPaths(*billing); len(paths) > 0 {
		cfg.BillingPaths = paths
	}

	gormDB, err := connection.ConnectGORMWithRetry(
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		5,
	)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("database handle failed", zap.Error(err))
	}
	defer sqlDB.Close()

	redisClient, err := connection.ConnectRedisWithRetry(os.Getenv("REDIS_ADDR"), 5)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	service := run.NewService(
		sqlDB,
		report.NewRepository(gormDB, sqlDB),
		kafka.NewOutboxRepository(sqlDB),
		ingest.NewService(cfg.AdjacentDayFallback),
		registry.NewBuilder(),
		registry.NewCache(redisClient, cfg.RegistryCacheTTL, time.Now),
		linker.NewService(),
		classify.NewService(cfg),
		integrity.NewEnforcer(cfg),
		cfg,
	)

	req := run.ReconcileRequest{
		Date:    *date,
		EndDate: *endDate,
		Files: map[string][]string{
			run.FileKeyTelemetry: splitPaths(*telemetry),
			run.FileKeyActivity:  splitPaths(*activity),
			run.FileKeyPresence:  splitPaths(*presence),
			run.FileKeySchedule:  splitPaths(*schedule),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, runErr := service.Reconcile(ctx, req)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("marshal result failed", zap.Error(err))
	}
	fmt.Println(string(out))

	if runErr != nil {
		logger.Error("reconcile failed", zap.Error(runErr))
		os.Exit(1)
	}
}

func splitPaths(raw string) []string {
	if raw == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
