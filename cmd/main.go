package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bookstore/internal/cache"
	"bookstore/internal/config"
	"bookstore/internal/handlers"
	"bookstore/internal/metrics"
	"bookstore/internal/models"
	"bookstore/internal/notifications"
	"bookstore/internal/repositories"
	"bookstore/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("failed to get generic DB", "error", err)
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := models.Migrate(db); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	var copyCache *cache.CopyCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		copyCache = cache.NewCopyCache(rdb, cfg.CopyCacheTTL)
		logger.Info("copy availability cache enabled", "addr", cfg.RedisAddr)
	}

	readerRepo := repositories.NewReaderRepository(db)
	titleRepo := repositories.NewTitleRepository(db)
	copyRepo := repositories.NewCopyRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	m := metrics.New(prometheus.DefaultRegisterer)
	clock := services.NewSystemClock()
	notifier := notifications.NewStoreNotifier(notificationRepo)

	avail := services.NewAvailabilityCoordinator(copyRepo, copyCache)
	requestSvc := services.NewRequestService(db, requestRepo, copyRepo, notificationRepo, notifier, m, clock, cfg.GraceWindow)
	borrowSvc := services.NewBorrowService(db, loanRepo, readerRepo, avail, requestSvc, m, clock)
	catalogSvc := services.NewCatalogService(db, titleRepo, copyRepo, readerRepo, avail)

	router := gin.Default()
	handlers.RegisterRoutes(router, catalogSvc, borrowSvc, requestSvc, cfg.LoanPeriodDays)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Periodic sweeps. The cadence is a deployment parameter; the sweeps
	// themselves are idempotent, so an overlapping run from the HTTP trigger
	// is harmless.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := borrowSvc.SweepOverdue(ctx); err != nil {
					logger.Error("overdue sweep failed", "error", err)
				} else if n > 0 {
					logger.Info("overdue sweep complete", "transitioned", n)
				}
				if n, err := requestSvc.SweepExpired(ctx); err != nil {
					logger.Error("expiry sweep failed", "error", err)
				} else if n > 0 {
					logger.Info("expiry sweep complete", "expired", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
