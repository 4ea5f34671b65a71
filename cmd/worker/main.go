package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lecture-notes-service/internal/blob"
	"lecture-notes-service/internal/config"
	"lecture-notes-service/internal/queue"
	"lecture-notes-service/internal/store"
	"lecture-notes-service/internal/telemetry"
	workerproc "lecture-notes-service/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
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

	media := workerproc.NewFFmpegProcessor(cfg, logger)

	transcriber, err := workerproc.NewHTTPTranscriber(workerproc.TranscriberOptions{
		Endpoint:   cfg.SpeechEndpoint,
		APIKey:     cfg.SpeechAPIKey,
		FolderID:   cfg.SpeechFolderID,
		Language:   cfg.SpeechLanguage,
		SampleRate: cfg.SpeechSampleRate,
	})
	if err != nil {
		log.Fatalf("init transcriber: %v", err)
	}

	// Notes synthesis degrades to a transcript-based fallback without a key.
	var summarizer workerproc.Summarizer
	if cfg.GeminiAPIKey != "" {
		gemini, err := workerproc.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			log.Fatalf("init summarizer: %v", err)
		}
		summarizer = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, notes will be generated without summarization")
	}

	pipeline := workerproc.New(cfg, recordStore, blobStore, q, media, transcriber, summarizer, logger)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with visibility=%s max_receives=%d", cfg.VisibilityTimeout, cfg.MaxReceives)
	if err := pipeline.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}

func newLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
