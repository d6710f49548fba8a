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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorhub-api/api/swagger"
	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/cache"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/database"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
)

// @title TutorHub API
// @version 1.0.0
// @description Tutoring marketplace: teacher availability, lesson booking and notifications.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	checks := map[string]handler.Pinger{"postgres": db}
	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
		checks["redis"] = handler.PingFunc(cacheRepo.Ping)
	}
	var cacheBackend service.CacheRepository
	if cacheRepo != nil {
		cacheBackend = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheBackend, metrics, "tutorhub:", cfg.Cache.CourseTTL, logr, redisClient != nil)

	notificationSvc := service.NewNotificationService(notificationRepo, metrics, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr.Named("notifications"),
	})
	notificationSvc.Start(context.Background())

	availabilitySvc := service.NewAvailabilityService(service.AvailabilityServiceParams{
		Repo:     availabilityRepo,
		Bookings: bookingRepo,
		Users:    userRepo,
		Courses:  courseRepo,
		Config: service.AvailabilityConfig{
			DefaultSlotMinutes: cfg.Booking.DefaultSlotMinutes,
			MaxRangeDays:       cfg.Booking.MaxRangeDays,
		},
		Validator: validate,
		Logger:    logr.Named("availability"),
	})
	bookingSvc := service.NewBookingService(service.BookingServiceParams{
		Repo:         bookingRepo,
		Courses:      courseRepo,
		Availability: availabilitySvc,
		Notifier:     notificationSvc,
		Metrics:      metrics,
		Validator:    validate,
		Logger:       logr.Named("bookings"),
	})
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.Cache.CourseTTL, validate, logr.Named("courses"))

	router := newRouter(cfg, logr, routerDeps{
		tokens:        service.NewTokenVerifier(cfg.JWT),
		metrics:       metrics,
		audit:         userRepo,
		availability:  handler.NewAvailabilityHandler(availabilitySvc),
		bookings:      handler.NewBookingHandler(bookingSvc),
		courses:       handler.NewCourseHandler(courseSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		ops:           handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown", zap.Error(err))
	}
	if err := notificationSvc.Stop(shutdownCtx); err != nil {
		logr.Warn("notification queue not drained", zap.Error(err))
	}
	logr.Info("server stopped")
	return nil
}
