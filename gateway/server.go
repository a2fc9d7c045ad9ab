// Package gateway is the HTTP surface of the document processing service.
// It translates requests into task submissions, bounded waits, status polls
// and streams, and runs the lightweight in-process operations directly.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohans/docgateway/auth"
	"github.com/mohans/docgateway/chunk"
	"github.com/mohans/docgateway/imaging"
	"github.com/mohans/docgateway/ocr"
	"github.com/mohans/docgateway/storage"
	"github.com/mohans/docgateway/taskqueue"
)

// TaskSubmitter enqueues typed tasks; satisfied by *taskqueue.Client.
type TaskSubmitter interface {
	SubmitProcessDocument(ctx context.Context, p taskqueue.ProcessDocumentPayload) (string, error)
	Revoke(ctx context.Context, taskID string) error
}

// TaskWaiter blocks for a bounded duration; satisfied by *taskqueue.Waiter.
type TaskWaiter interface {
	Wait(ctx context.Context, taskID string, timeout time.Duration) (json.RawMessage, error)
}

// TaskStreamer produces live status events; satisfied by *taskqueue.Streamer.
type TaskStreamer interface {
	Stream(ctx context.Context, taskID string) <-chan taskqueue.StatusEvent
}

// WorkerCounter reports live worker servers; satisfied by *taskqueue.InspectorReader.
type WorkerCounter interface {
	Workers(ctx context.Context) (int, error)
}

// Options carries the request-independent configuration of the server.
type Options struct {
	ServiceName    string
	Version        string
	DefaultWait    time.Duration
	ChunkSize      int
	ChunkOverlap   int
	OCRLanguages   []string
	InternalSecret string
}

// Server holds the explicitly constructed dependencies of every handler.
// All of them are safe for concurrent use; the server itself carries no
// per-request mutable state.
type Server struct {
	submitter TaskSubmitter
	waiter    TaskWaiter
	streamer  TaskStreamer
	reader    taskqueue.StatusReader
	workers   WorkerCounter
	files     *storage.Store
	cropper   *imaging.Cropper
	regionOCR *ocr.RegionProcessor
	opts      Options
	log       *slog.Logger
}

func NewServer(
	submitter TaskSubmitter,
	waiter TaskWaiter,
	streamer TaskStreamer,
	reader taskqueue.StatusReader,
	workers WorkerCounter,
	files *storage.Store,
	regionOCR *ocr.RegionProcessor,
	opts Options,
	log *slog.Logger,
) *Server {
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = 300 * time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		submitter: submitter,
		waiter:    waiter,
		streamer:  streamer,
		reader:    reader,
		workers:   workers,
		files:     files,
		cropper:   imaging.NewCropper(),
		regionOCR: regionOCR,
		opts:      opts,
		log:       log,
	}
}

// Router builds the gin engine. authn authenticates any caller; admin runs
// after authn and gates the mutating endpoints on role.
func (s *Server) Router(authn, admin gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/healthz", s.handleHealth)

	doc := r.Group("/api/doc", authn)
	adm := doc.Group("", admin)
	{
		adm.GET("/status", s.handleServiceStatus)
		adm.POST("/process", s.handleProcess)
		adm.POST("/process/async", s.handleProcessAsync)
		adm.GET("/process/status/:task_id", s.handleTaskStatus)
		adm.GET("/process/status/:task_id/stream", s.handleTaskStream)
		adm.DELETE("/process/:task_id", s.handleRevoke)
		adm.POST("/chunk", s.handleChunk)

		adm.POST("/ocr/crop", s.handleCrop)
		adm.POST("/ocr/ocr-region", s.handleOCRRegion)
		adm.POST("/ocr/save-cropped-image", s.handleSaveCroppedImage)
		adm.PUT("/ocr/metadata/:document_id", s.handleUpdateMetadata)

		doc.GET("/ocr/images/:document_id/*path", s.handleGetImage)
		doc.GET("/ocr/metadata/:document_id", s.handleGetMetadata)
	}

	// Service-to-service mirror of the delegation endpoints, authenticated
	// by shared secret instead of bearer tokens.
	if s.opts.InternalSecret != "" {
		internal := r.Group("/internal", auth.InternalSecret(s.opts.InternalSecret))
		internal.POST("/process", s.handleProcess)
		internal.GET("/process/status/:task_id", s.handleTaskStatus)
		internal.GET("/process/status/:task_id/stream", s.handleTaskStream)
	}

	return r
}

func (s *Server) newSplitter(size, overlap int) *chunk.Splitter {
	if size <= 0 {
		size = s.opts.ChunkSize
	}
	if overlap < 0 {
		overlap = s.opts.ChunkOverlap
	}
	return chunk.NewSplitter(size, overlap)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": s.opts.ServiceName,
		"version": s.opts.Version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": s.opts.ServiceName,
		"version": s.opts.Version,
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Internal-Secret")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
