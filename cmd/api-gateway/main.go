package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	_ "github.com/edustack-io/campus-api/api/swagger"
	"github.com/edustack-io/campus-api/internal/handler"
	"github.com/edustack-io/campus-api/internal/repository"
	"github.com/edustack-io/campus-api/internal/service"
	"github.com/edustack-io/campus-api/pkg/cache"
	"github.com/edustack-io/campus-api/pkg/config"
	"github.com/edustack-io/campus-api/pkg/database"
	"github.com/edustack-io/campus-api/pkg/feed"
	"github.com/edustack-io/campus-api/pkg/jobs"
	"github.com/edustack-io/campus-api/pkg/logger"
	"github.com/edustack-io/campus-api/pkg/notify"
)

// @title Campus API
// @version 1.0.0
// @description Multi-tenant school management API with calendar, onboarding and roster modules
// @BasePath /api/v1
// @schemes http https

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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The occurrence cache and reminder dedup markers are advisory;
		// the API still works without Redis.
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	parentRepo := repository.NewParentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewTeacherAssignmentRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	examRepo := repository.NewExamRepository(db)
	homeworkRepo := repository.NewAssignmentRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, logr)
	}

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-api",
	})

	recurrenceSvc := service.NewRecurrenceService(calendarRepo, cacheSvc, cfg.Recurrence.CacheTTL, logr)
	visibilitySvc := service.NewVisibilityService(enrollmentRepo, parentRepo, assignmentRepo, classRepo, logr)
	syncSvc := service.NewCalendarSyncService(calendarRepo, cacheSvc, logr)
	calendarSvc := service.NewCalendarService(calendarRepo, recurrenceSvc, visibilitySvc, cacheSvc, userRepo, validate, logr)
	onboardingSvc := service.NewOnboardingService(schoolRepo, userRepo, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, onboardingSvc, calendarSvc, validate, logr)

	feedSigner := feed.NewTokenSigner(cfg.Feed.TokenSecret, cfg.Feed.TokenTTL)
	feedSvc := service.NewCalendarFeedService(userRepo, calendarRepo, visibilitySvc, recurrenceSvc, feedSigner, cfg.Feed, logr)

	sender := notify.NewConsoleSender(logr)
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseDelay:   cfg.Notify.BaseDelay,
		MaxDelay:    cfg.Notify.MaxDelay,
	}, logr)
	reminderSvc := service.NewReminderService(calendarRepo, userRepo, recurrenceSvc, cacheSvc, dispatcher, cfg.Reminders, logr)

	reminderQueue := jobs.NewQueue("reminders", reminderSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Reminders.Workers,
		BufferSize: cfg.Reminders.QueueSize,
		Logger:     logr,
	})
	reminderSvc.AttachQueue(reminderQueue)

	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	parentSvc := service.NewParentService(parentRepo, studentRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, classRepo, validate, logr)
	teacherAssignmentSvc := service.NewTeacherAssignmentService(assignmentRepo, teacherRepo, classRepo, validate, logr)
	examSvc := service.NewExamService(examRepo, syncSvc, validate, logr)
	homeworkSvc := service.NewAssignmentService(homeworkRepo, syncSvc, validate, logr)
	meetingSvc := service.NewMeetingService(meetingRepo, syncSvc, validate, logr)

	router := handler.NewRouter(cfg, logr, handler.RouterDeps{
		AuthService: authSvc,
		Metrics:     metricsSvc,
		UserRepo:    userRepo,

		Auth:              handler.NewAuthHandler(authSvc),
		Users:             handler.NewUserHandler(userSvc),
		Schools:           handler.NewSchoolHandler(schoolSvc),
		Onboarding:        handler.NewOnboardingHandler(onboardingSvc),
		Students:          handler.NewStudentHandler(studentSvc),
		Teachers:          handler.NewTeacherHandler(teacherSvc),
		Parents:           handler.NewParentHandler(parentSvc),
		Classes:           handler.NewClassHandler(classSvc),
		Subjects:          handler.NewSubjectHandler(subjectSvc),
		Enrollments:       handler.NewEnrollmentHandler(enrollmentSvc),
		TeacherAssignment: handler.NewTeacherAssignmentHandler(teacherAssignmentSvc),
		Exams:             handler.NewExamHandler(examSvc),
		Assignments:       handler.NewAssignmentHandler(homeworkSvc),
		Meetings:          handler.NewMeetingHandler(meetingSvc),
		Calendar:          handler.NewCalendarHandler(calendarSvc),
		Feed:              handler.NewFeedHandler(feedSvc),
		MetricsHandler:    handler.NewMetricsHandler(metricsSvc),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reminderQueue.Start(ctx)

	scheduler := cron.New()
	if cfg.Reminders.Enabled {
		interval := cfg.Reminders.ScanInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		spec := fmt.Sprintf("@every %s", interval)
		if _, err := scheduler.AddFunc(spec, func() {
			enqueued, err := reminderSvc.Scan(ctx)
			if err != nil {
				logr.Error("reminder scan", zap.Error(err))
				return
			}
			metricsSvc.RecordReminderEnqueued(enqueued)
		}); err != nil {
			logr.Error("schedule reminder scan", zap.Error(err))
		}
	}
	if _, err := scheduler.AddFunc("0 3 * * *", func() {
		purged, err := authSvc.PurgeExpiredTokens(ctx)
		if err != nil {
			logr.Error("purge expired tokens", zap.Error(err))
			return
		}
		logr.Info("purged expired refresh tokens", zap.Int64("count", purged))
	}); err != nil {
		logr.Error("schedule token purge", zap.Error(err))
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	scheduler.Stop()
	reminderQueue.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown", zap.Error(err))
	}
}
