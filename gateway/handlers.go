package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mohans/docgateway/auth"
	"github.com/mohans/docgateway/taskqueue"
)

// handleServiceStatus reports whether live workers are attached to the queue.
func (s *Server) handleServiceStatus(c *gin.Context) {
	n, err := s.workers.Workers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, ServiceStatusResponse{
			Status:  "error",
			Message: "failed to check worker status: " + err.Error(),
			Mode:    "queue_async",
		})
		return
	}
	if n == 0 {
		c.JSON(http.StatusOK, ServiceStatusResponse{
			Status:  "warning",
			Message: "no active workers found, processing may be delayed",
			Mode:    "queue_async",
		})
		return
	}
	c.JSON(http.StatusOK, ServiceStatusResponse{
		Status:  "ready",
		Message: "document processing service is ready, workers: " + strconv.Itoa(n),
		Mode:    "queue_async",
	})
}

// handleProcess accepts a document upload and delegates processing to the
// worker pool. With wait=true (the default) it blocks up to the timeout and
// returns the full result; a timeout degrades to the async response so the
// caller can poll by task id.
func (s *Server) handleProcess(c *gin.Context) {
	wait := true
	if v := c.Query("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeValidationError(c, "invalid wait flag")
			return
		}
		wait = parsed
	}
	timeout := s.opts.DefaultWait
	if v := c.Query("timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			writeValidationError(c, "invalid timeout")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	taskID, filename, err := s.submitUpload(c)
	if err != nil {
		return // response already written
	}

	if !wait {
		c.JSON(http.StatusAccepted, processingResponse(taskID, filename, "document processing started"))
		return
	}

	raw, err := s.waiter.Wait(c.Request.Context(), taskID, timeout)
	if err != nil {
		if errors.Is(err, taskqueue.ErrWaitTimeout) {
			s.log.Warn("wait timed out, degrading to async", "task_id", taskID)
			c.JSON(http.StatusAccepted, processingResponse(taskID, filename,
				"processing in progress, use task_id to check status"))
			return
		}
		writeError(c, err)
		return
	}

	resp := DocumentProcessResponse{
		Status:           "success",
		Message:          "document processed successfully",
		FilesCreated:     map[string]string{},
		OriginalFilename: filename,
		ProcessingMode:   "queue_async",
	}
	var result taskqueue.ProcessingResult
	if err := json.Unmarshal(raw, &result); err == nil {
		resp.OutputDirectory = result.OutputDirectory
		resp.TotalPages = result.TotalPages
		if result.FilesCreated != nil {
			resp.FilesCreated = result.FilesCreated
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleProcessAsync always returns immediately with the task handle.
func (s *Server) handleProcessAsync(c *gin.Context) {
	taskID, _, err := s.submitUpload(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "document processing started",
		"task_id": taskID,
	})
}

// submitUpload stores the uploaded file under the shared path convention
// and enqueues the processing task. On error the HTTP response is already
// written and a non-nil error returned.
func (s *Server) submitUpload(c *gin.Context) (taskID, filename string, err error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeValidationError(c, "missing file upload")
		return "", "", err
	}
	filename = fileHeader.Filename
	if filename == "" {
		filename = "document.pdf"
	}

	src, err := fileHeader.Open()
	if err != nil {
		writeValidationError(c, "unreadable file upload")
		return "", "", err
	}
	defer src.Close()

	storedPath, err := s.files.SaveUpload(uuid.New().String(), filename, src)
	if err != nil {
		writeError(c, err)
		return "", "", err
	}

	user, _ := auth.FromContext(c)
	taskID, err = s.submitter.SubmitProcessDocument(c.Request.Context(), taskqueue.ProcessDocumentPayload{
		FilePath:         storedPath,
		OriginalFilename: filename,
		CallbackURL:      c.PostForm("callback_url"),
		UserID:           user.ID,
	})
	if err != nil {
		writeError(c, err)
		return "", "", err
	}
	s.log.Info("document submitted", "task_id", taskID, "filename", filename, "user_id", user.ID)
	return taskID, filename, nil
}

func processingResponse(taskID, filename, message string) DocumentProcessResponse {
	return DocumentProcessResponse{
		Status:           "processing",
		Message:          message,
		FilesCreated:     map[string]string{},
		OriginalFilename: filename,
		ProcessingMode:   "queue_async",
		TaskID:           taskID,
	}
}

// handleTaskStatus returns a single snapshot for a task handle.
func (s *Server) handleTaskStatus(c *gin.Context) {
	snap, err := s.reader.Snapshot(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TaskStatusResponse{
		TaskID: snap.TaskID,
		Status: snap.Status,
		Result: snap.Result,
		Info:   snap.Info,
	})
}

// handleTaskStream streams status events over SSE until the task reaches a
// terminal state or the caller disconnects. Disconnection cancels the
// request context, which stops the underlying poll loop.
func (s *Server) handleTaskStream(c *gin.Context) {
	taskID := c.Param("task_id")
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := s.streamer.Stream(c.Request.Context(), taskID)
	s.log.Info("status stream started", "task_id", taskID)

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			s.log.Info("status stream closed", "task_id", taskID)
			return false
		}
		name := "progress"
		switch {
		case ev.Err != "":
			name = "error"
		case ev.Heartbeat:
			name = "heartbeat"
		}
		c.SSEvent(name, ev)
		return true
	})
}

// handleRevoke cancels a task and marks it REVOKED.
func (s *Server) handleRevoke(c *gin.Context) {
	taskID := c.Param("task_id")
	if err := s.submitter.Revoke(c.Request.Context(), taskID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "status": taskqueue.StatusRevoked})
}

// handleChunk splits text into embedding-sized chunks, synchronously.
func (s *Server) handleChunk(c *gin.Context) {
	var req ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, "text is required")
		return
	}
	splitter := s.newSplitter(req.ChunkSize, req.ChunkOverlap)
	chunks := splitter.Split(req.Text)
	c.JSON(http.StatusOK, ChunkResponse{
		Status:     "success",
		ChunkCount: len(chunks),
		Chunks:     chunks,
		Settings:   ChunkSettings{ChunkSize: splitter.ChunkSize, ChunkOverlap: splitter.ChunkOverlap},
	})
}
