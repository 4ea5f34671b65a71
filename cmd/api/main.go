package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	api "lecture-notes-service/internal/api"
	"lecture-notes-service/internal/blob"
	"lecture-notes-service/internal/config"
	"lecture-notes-service/internal/queue"
	"lecture-notes-service/internal/ratelimit"
	"lecture-notes-service/internal/store"
	"lecture-notes-service/internal/tasks"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	var blobStore blob.Store
	if cfg.StorageBucket != "" {
		s3Store, err := blob.NewS3Store(ctx, cfg)
		if err != nil {
			log.Fatalf("connect storage: %v", err)
		}
		blobStore = s3Store
	} else {
		logger.Warn("STORAGE_BUCKET not set, using in-memory storage")
		blobStore = blob.NewMemoryStore()
	}

	recordStore := store.New(blobStore, logger, cfg.UpdateRetries)
	q := queue.NewRedisQueue(cfg)

	redisLimiter := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisLimiter, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	var validator *tasks.LinkValidator
	if len(cfg.AllowedVideoHosts) > 0 {
		validator = tasks.NewLinkValidator(cfg.AllowedVideoHosts, 15*time.Second)
	}
	service := tasks.NewService(recordStore, q, validator, logger)

	server := api.New(cfg, service, limiter, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
