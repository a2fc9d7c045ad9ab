// The gateway binary serves the document processing HTTP API: it accepts
// uploads, delegates heavy processing to the worker pool through the task
// queue, and runs the lightweight operations (chunking, cropping, region
// OCR) in-process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/mohans/docgateway/auth"
	"github.com/mohans/docgateway/config"
	"github.com/mohans/docgateway/gateway"
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
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

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

	client := taskqueue.NewClient(redisOpt, store, taskqueue.ClientOptions{
		Queue:     cfg.Queue,
		Retention: cfg.ResultRetention,
	})
	defer client.Close()

	reader := taskqueue.NewInspectorReader(redisOpt, store, cfg.Queue)
	waiter := taskqueue.NewWaiter(reader, cfg.WaitPollInterval)
	streamer := taskqueue.NewStreamer(reader, cfg.StreamInterval, cfg.StreamHeartbeat)

	regionOCR := ocr.NewRegionProcessor(ocr.NewTesseractEngine(), nil, cfg.OCRLanguages)

	srv := gateway.NewServer(
		client, waiter, streamer, reader, reader,
		storage.New(cfg.StorageBasePath),
		regionOCR,
		gateway.Options{
			ServiceName:    cfg.ServiceName,
			Version:        cfg.Version,
			DefaultWait:    cfg.DefaultWait,
			ChunkSize:      cfg.ChunkSize,
			ChunkOverlap:   cfg.ChunkOverlap,
			OCRLanguages:   cfg.OCRLanguages,
			InternalSecret: cfg.InternalSecret,
		},
		log,
	)

	verifier := auth.NewVerifier(cfg.JWKSURL, cfg.JWTAudience, cfg.JWTIssuer)
	router := srv.Router(verifier.Middleware(), auth.RequireAdmin())

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("gateway listening", "addr", cfg.ListenAddr, "service", cfg.ServiceName)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
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
