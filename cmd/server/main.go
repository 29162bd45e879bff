package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/blastsocial/backend/internal/cache"
	"github.com/blastsocial/backend/internal/config"
	"github.com/blastsocial/backend/internal/database"
	"github.com/blastsocial/backend/internal/feed"
	"github.com/blastsocial/backend/internal/handlers"
	"github.com/blastsocial/backend/internal/logger"
	"github.com/blastsocial/backend/internal/metrics"
	"github.com/blastsocial/backend/internal/notifications"
	"github.com/blastsocial/backend/internal/posts"
	"github.com/blastsocial/backend/internal/ranking"
	"github.com/blastsocial/backend/internal/social"
	"github.com/blastsocial/backend/internal/sweeper"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	metrics.Initialize()

	db, err := database.Initialize(cfg.DSN(), cfg.Environment)
	if err != nil {
		logger.FatalWithFields("failed to initialize database", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("failed to run migrations", err)
	}

	redisClient, err := cache.New(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		logger.FatalWithFields("failed to connect to redis", err)
	}
	defer redisClient.Close()

	anonymousID, err := social.EnsureAnonymousUser(db)
	if err != nil {
		logger.FatalWithFields("failed to ensure anonymous user", err)
	}

	ledger := ranking.NewLedger(db, redisClient, logger.Log, anonymousID)
	query := ranking.NewQuery(db, ledger, logger.Log)
	composer := feed.NewComposer(db, query, redisClient, logger.Log)

	notifier := notifications.NewDispatcher(db, logger.Log)
	notifier.Start()
	defer notifier.Stop()

	postSvc := posts.NewService(db, ledger, notifier, logger.Log)
	socialSvc := social.NewService(db, ledger, notifier, logger.Log)

	sweepInterval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil {
		sweepInterval = time.Minute
	}
	sweep := sweeper.New(postSvc, sweepInterval, logger.Log)
	sweep.Start()
	defer sweep.Stop()

	h := handlers.NewHandlers(postSvc, socialSvc, query, composer, cfg.JWTSecret)
	router := h.SetupRouter(cfg.Environment)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.InfoWithFields("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoWithFields("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.FatalWithFields("forced shutdown", err)
	}

	logger.InfoWithFields("server exited")
}
