package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/repository"
	"github.com/edustack-io/campus-api/internal/service"
	"github.com/edustack-io/campus-api/pkg/config"
	"github.com/edustack-io/campus-api/pkg/database"
	"github.com/edustack-io/campus-api/pkg/logger"
)

// Seeds step rows for schools created before the per-step tracker existed,
// translating the legacy scalar onboarding column. Safe to re-run.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	schoolRepo := repository.NewSchoolRepository(db)
	userRepo := repository.NewUserRepository(db)
	svc := service.NewOnboardingService(schoolRepo, userRepo, logr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	migrated, err := svc.Backfill(ctx)
	if err != nil {
		logr.Fatal("backfill failed", zap.Error(err))
	}
	logr.Info("backfill complete", zap.Int("schools", migrated))
}
