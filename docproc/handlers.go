// Package docproc implements the worker-pool side of document processing:
// the task handlers a worker binary registers on the queue. Chunking and
// region OCR run entirely in-process; the document pipeline handles image
// documents end to end and rejects PDFs, which belong to the external
// layout analysis engine.
package docproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mohans/docgateway/chunk"
	"github.com/mohans/docgateway/ocr"
	"github.com/mohans/docgateway/storage"
	"github.com/mohans/docgateway/taskqueue"
)

// imageExtensions the built-in pipeline can process directly.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// Handlers bundles the dependencies of every task handler.
type Handlers struct {
	Files     *storage.Store
	TaskStore taskqueue.Store
	Engine    ocr.Engine           // whole-page recognition
	RegionOCR *ocr.RegionProcessor // bounded-region recognition with fallback
	Splitter  *chunk.Splitter
	HTTP      *http.Client // completion callbacks
	Log       *slog.Logger
}

func New(files *storage.Store, taskStore taskqueue.Store, engine ocr.Engine, regionOCR *ocr.RegionProcessor, splitter *chunk.Splitter, log *slog.Logger) *Handlers {
	if splitter == nil {
		splitter = chunk.NewSplitter(1000, 200)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		Files:     files,
		TaskStore: taskStore,
		Engine:    engine,
		RegionOCR: regionOCR,
		Splitter:  splitter,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Log:       log,
	}
}

// Register binds the handlers to their task kinds.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(string(taskqueue.KindProcessDocument), h.HandleProcessDocument)
	mux.HandleFunc(string(taskqueue.KindChunkDocument), h.HandleChunkDocument)
	mux.HandleFunc(string(taskqueue.KindOCRRegion), h.HandleOCRRegion)
}

// HandleProcessDocument runs the image-document pipeline. A malformed
// payload or an unsupported format is a permanent failure, not a retry.
func (h *Handlers) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var p taskqueue.ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	taskID, _ := asynq.GetTaskID(ctx)

	result, err := h.ProcessDocument(ctx, p, taskID)
	if err != nil {
		// Notify only when the broker will not try again; a retryable
		// attempt must not spam the callback URL with FAILURE.
		if permanentFailure(ctx, err) {
			h.callback(ctx, p.CallbackURL, taskID, taskqueue.StatusFailure, nil)
		}
		return err
	}
	raw, merr := json.Marshal(result)
	if merr != nil {
		return merr
	}
	if err := taskqueue.RecordResult(ctx, h.TaskStore, t, raw); err != nil {
		return err
	}
	h.callback(ctx, p.CallbackURL, taskID, taskqueue.StatusSuccess, raw)
	return nil
}

// ProcessDocument OCRs an image document and writes the output directory:
// a page image copy, the recognized text and the hierarchy metadata.
func (h *Handlers) ProcessDocument(ctx context.Context, p taskqueue.ProcessDocumentPayload, taskID string) (taskqueue.ProcessingResult, error) {
	var zero taskqueue.ProcessingResult
	if p.FilePath == "" {
		return zero, fmt.Errorf("file_path is required: %w", asynq.SkipRetry)
	}
	ext := strings.ToLower(filepath.Ext(p.OriginalFilename))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(p.FilePath))
	}
	if ext == ".pdf" {
		return zero, fmt.Errorf("pdf documents require the layout analysis engine, not the built-in pipeline: %w", asynq.SkipRetry)
	}
	if !imageExtensions[ext] {
		return zero, fmt.Errorf("unsupported document format %q: %w", ext, asynq.SkipRetry)
	}

	documentID := taskID
	if documentID == "" {
		documentID = filepath.Base(filepath.Dir(p.FilePath))
	}
	outDir := h.Files.DocumentDir(documentID, "")

	h.progress(ctx, "preparing", 10)
	imagesDir := filepath.Join(outDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return zero, fmt.Errorf("create output dir: %w", err)
	}
	pageImage := filepath.Join(imagesDir, "page_1_full"+ext)
	if err := storage.CopyFile(p.FilePath, pageImage); err != nil {
		return zero, fmt.Errorf("copy page image: %w", err)
	}

	h.progress(ctx, "ocr", 40)
	data, err := os.ReadFile(p.FilePath)
	if err != nil {
		return zero, fmt.Errorf("read document: %w", err)
	}
	res, err := h.Engine.Recognize(ctx, ocr.Input{Image: data})
	if err != nil {
		return zero, fmt.Errorf("recognize page 1: %w", err)
	}

	h.progress(ctx, "writing_output", 80)
	textPath := filepath.Join(outDir, "text.txt")
	if err := os.WriteFile(textPath, []byte(res.Text), 0o644); err != nil {
		return zero, fmt.Errorf("write text: %w", err)
	}
	meta := pageHierarchy{
		DocumentID:       documentID,
		OriginalFilename: p.OriginalFilename,
		TotalPages:       1,
		Pages: []pageEntry{{
			PageNumber: 1,
			Image:      filepath.ToSlash(filepath.Join("images", filepath.Base(pageImage))),
			Text:       res.Text,
			Confidence: res.Confidence,
			Engine:     res.Engine,
		}},
	}
	metaRaw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return zero, err
	}
	metaPath := filepath.Join(outDir, "metadata_hierarchy.json")
	if err := os.WriteFile(metaPath, metaRaw, 0o644); err != nil {
		return zero, fmt.Errorf("write metadata: %w", err)
	}

	h.progress(ctx, "done", 100)
	return taskqueue.ProcessingResult{
		Status:          "success",
		Message:         "document processed successfully",
		OutputDirectory: outDir,
		FilesCreated: map[string]string{
			"text":     "text.txt",
			"metadata": "metadata_hierarchy.json",
			"page_1":   meta.Pages[0].Image,
		},
		TotalPages:       1,
		OriginalFilename: p.OriginalFilename,
		ProcessingMode:   "queue_async",
	}, nil
}

type pageHierarchy struct {
	DocumentID       string      `json:"document_id"`
	OriginalFilename string      `json:"original_filename"`
	TotalPages       int         `json:"total_pages"`
	Pages            []pageEntry `json:"pages"`
}

type pageEntry struct {
	PageNumber int     `json:"page_number"`
	Image      string  `json:"image"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine"`
}

// HandleChunkDocument splits text and records the chunks as the task result.
func (h *Handlers) HandleChunkDocument(ctx context.Context, t *asynq.Task) error {
	var p taskqueue.ChunkDocumentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Text == "" {
		return fmt.Errorf("text is required: %w", asynq.SkipRetry)
	}
	splitter := h.Splitter
	if p.ChunkSize > 0 {
		overlap := p.ChunkOverlap
		if overlap < 0 {
			overlap = 0
		}
		splitter = chunk.NewSplitter(p.ChunkSize, overlap)
	}
	chunks := splitter.Split(p.Text)
	raw, err := json.Marshal(map[string]any{
		"status":        "success",
		"document_id":   p.DocumentID,
		"chunk_count":   len(chunks),
		"chunks":        chunks,
		"chunk_size":    splitter.ChunkSize,
		"chunk_overlap": splitter.ChunkOverlap,
	})
	if err != nil {
		return err
	}
	return taskqueue.RecordResult(ctx, h.TaskStore, t, raw)
}

// HandleOCRRegion recognizes a bounded region of a stored page image.
func (h *Handlers) HandleOCRRegion(ctx context.Context, t *asynq.Task) error {
	var p taskqueue.OCRRegionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	docDir := h.Files.DocumentDir(p.DocumentID, "")
	imagePath, err := h.Files.Resolve(docDir, p.PageImage)
	if err != nil {
		return fmt.Errorf("resolve page image: %v: %w", err, asynq.SkipRetry)
	}
	var langs []string
	if p.Language != "" {
		langs = strings.Split(p.Language, "+")
	}
	res, err := h.RegionOCR.ProcessFile(ctx, imagePath, ocr.Region{
		X: p.X, Y: p.Y, Width: p.Width, Height: p.Height,
	}, langs)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return taskqueue.RecordResult(ctx, h.TaskStore, t, raw)
}

// permanentFailure reports whether this attempt is the last one: either the
// error opted out of retrying, or the retry budget is spent.
func permanentFailure(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return ok && ok2 && retried >= maxRetry
}

// progress records a stage marker for status pollers; best effort.
func (h *Handlers) progress(ctx context.Context, stage string, percent int) {
	raw, err := json.Marshal(map[string]any{"stage": stage, "percent": percent})
	if err != nil {
		return
	}
	taskqueue.ReportProgress(ctx, h.TaskStore, string(raw))
}

// callback notifies an upstream service that the task finished. Failures are
// logged, never propagated; the task outcome is already recorded.
func (h *Handlers) callback(ctx context.Context, url, taskID string, status taskqueue.Status, result json.RawMessage) {
	if url == "" {
		return
	}
	body, err := json.Marshal(map[string]any{
		"task_id": taskID,
		"status":  status,
		"result":  result,
	})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		h.Log.Warn("callback request build failed", "url", url, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.HTTP.Do(req)
	if err != nil {
		h.Log.Warn("callback delivery failed", "url", url, "task_id", taskID, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		h.Log.Warn("callback rejected", "url", url, "task_id", taskID, "status", resp.StatusCode)
	}
}
