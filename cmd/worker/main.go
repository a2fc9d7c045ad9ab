// The worker binary runs the task-queue consumer: it pulls document
// processing, chunking and region OCR tasks off the broker and executes
// them with the built-in pipeline.
package main

import (
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	_ "modernc.org/sqlite"

	"github.com/mohans/docgateway/chunk"
	"github.com/mohans/docgateway/config"
	"github.com/mohans/docgateway/docproc"
	"github.com/mohans/docgateway/ocr"
	"github.com/mohans/docgateway/storage"
	"github.com/mohans/docgateway/taskqueue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	redisOpt, err := cfg.RedisOpt()
	if err != nil {
		log.Error("redis config", "err", err)
		os.Exit(1)
	}

	var store taskqueue.Store
	if cfg.DatabaseDSN != "" {
		db, err := sql.Open("sqlite", cfg.DatabaseDSN)
		if err != nil {
			log.Error("open database", "dsn", cfg.DatabaseDSN, "err", err)
			os.Exit(1)
		}
		defer db.Close()
		store = taskqueue.NewSQLStore(db)
	}

	engine := ocr.NewTesseractEngine()
	handlers := docproc.New(
		storage.New(cfg.StorageBasePath),
		store,
		engine,
		ocr.NewRegionProcessor(engine, nil, cfg.OCRLanguages),
		chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		log,
	)

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	processor := taskqueue.NewProcessor(redisOpt, store, taskqueue.ProcessorConfig{
		Concurrency: cfg.WorkerCount,
		Queues:      map[string]int{cfg.Queue: 1},
		Logger:      log,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down worker")
		processor.Shutdown()
	}()

	log.Info("worker starting", "queue", cfg.Queue, "concurrency", cfg.WorkerCount)
	if err := processor.Start(mux); err != nil {
		log.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
