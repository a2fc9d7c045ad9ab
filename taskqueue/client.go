package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Client submits typed tasks to the broker and records lifecycle metadata.
// It is safe for concurrent use by multiple in-flight requests.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	store     Store
	queue     string
	retention time.Duration
}

type ClientOptions struct {
	Queue     string
	Retention time.Duration // how long the broker keeps results of finished tasks
}

func NewClient(redisOpt asynq.RedisConnOpt, store Store, opts ClientOptions) *Client {
	q := opts.Queue
	if q == "" {
		q = "default"
	}
	ret := opts.Retention
	if ret <= 0 {
		ret = 24 * time.Hour
	}
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		store:     store,
		queue:     q,
		retention: ret,
	}
}

// SubmitProcessDocument enqueues a full document processing task and returns
// the task handle without waiting for execution.
func (c *Client) SubmitProcessDocument(ctx context.Context, p ProcessDocumentPayload) (string, error) {
	if p.FilePath == "" {
		return "", fmt.Errorf("taskqueue: empty file path")
	}
	if p.OriginalFilename == "" {
		p.OriginalFilename = "document.pdf"
	}
	return c.submit(ctx, KindProcessDocument, p, p.UserID)
}

// SubmitChunkDocument enqueues a text chunking task.
func (c *Client) SubmitChunkDocument(ctx context.Context, p ChunkDocumentPayload) (string, error) {
	if p.Text == "" {
		return "", fmt.Errorf("taskqueue: empty text")
	}
	return c.submit(ctx, KindChunkDocument, p, "")
}

// SubmitOCRRegion enqueues a region OCR task.
func (c *Client) SubmitOCRRegion(ctx context.Context, p OCRRegionPayload) (string, error) {
	if p.PageImage == "" {
		return "", fmt.Errorf("taskqueue: empty page image path")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return "", fmt.Errorf("taskqueue: non-positive region %gx%g", p.Width, p.Height)
	}
	return c.submit(ctx, KindOCRRegion, p, "")
}

func (c *Client) submit(ctx context.Context, kind Kind, payload any, userID string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("nil asynq client")
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	t := asynq.NewTask(string(kind), payloadBytes)
	info, err := c.client.EnqueueContext(ctx, t,
		asynq.Queue(c.queue),
		asynq.TaskID(uuid.New().String()),
		asynq.Retention(c.retention),
		asynq.Timeout(time.Hour),
	)
	if err != nil {
		if isConnErr(err) {
			return "", fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
		}
		return "", err
	}
	// Persist the submitted record; a failed insert is logged by the store
	// caller, not fatal for the submission itself.
	if c.store != nil {
		_ = c.store.InsertSubmitted(ctx, TaskRecord{
			ID:          info.ID,
			Kind:        kind,
			Queue:       info.Queue,
			PayloadJSON: string(payloadBytes),
			Status:      StatusPending,
			UserID:      userID,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return info.ID, nil
}

// Revoke cancels a task. An actively running task is signalled through the
// broker; a queued task is deleted. The lifecycle record is marked REVOKED
// either way so later polls report the terminal state.
func (c *Client) Revoke(ctx context.Context, taskID string) error {
	if _, err := c.inspector.GetTaskInfo(c.queue, taskID); err != nil {
		if isTaskNotFound(err) {
			return ErrTaskNotFound
		}
		return err
	}
	_ = c.inspector.CancelProcessing(taskID)
	_ = c.inspector.DeleteTask(c.queue, taskID)
	if c.store != nil {
		_ = c.store.MarkRevoked(ctx, taskID, time.Now().UTC())
	}
	return nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// isConnErr reports whether err means the broker is unreachable, as opposed
// to a broker-side rejection of the operation.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
