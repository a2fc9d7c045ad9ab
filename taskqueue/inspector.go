package taskqueue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

// StatusReader produces point-in-time task snapshots. Implementations must
// be safe for concurrent use; the Waiter and the Streamer poll through this
// interface.
type StatusReader interface {
	Snapshot(ctx context.Context, taskID string) (Snapshot, error)
}

// InspectorReader reads task state from the broker and overlays the
// lifecycle store. The store fills two gaps the broker cannot: worker
// progress payloads, and tasks the broker already expired or revoked.
type InspectorReader struct {
	inspector *asynq.Inspector
	store     Store
	queue     string
}

func NewInspectorReader(redisOpt asynq.RedisConnOpt, store Store, queue string) *InspectorReader {
	if queue == "" {
		queue = "default"
	}
	return &InspectorReader{
		inspector: asynq.NewInspector(redisOpt),
		store:     store,
		queue:     queue,
	}
}

func (r *InspectorReader) Snapshot(ctx context.Context, taskID string) (Snapshot, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	default:
	}
	info, err := r.inspector.GetTaskInfo(r.queue, taskID)
	if err != nil {
		if isTaskNotFound(err) {
			return r.snapshotFromStore(ctx, taskID)
		}
		if isConnErr(err) {
			return Snapshot{}, errors.Join(ErrBrokerUnavailable, err)
		}
		return Snapshot{}, err
	}
	snap := Snapshot{TaskID: taskID}
	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		snap.Status = StatusPending
	case asynq.TaskStateRetry:
		// Queued again after a worker error; the last error rides along as info.
		snap.Status = StatusPending
		snap.Info = errInfo(info.LastErr)
	case asynq.TaskStateActive:
		snap.Status = StatusStarted
	case asynq.TaskStateCompleted:
		snap.Status = StatusSuccess
		snap.Result = json.RawMessage(info.Result)
	case asynq.TaskStateArchived:
		snap.Status = StatusFailure
		snap.Info = errInfo(info.LastErr)
	default:
		snap.Status = StatusPending
	}
	return r.overlayStore(ctx, snap)
}

// overlayStore upgrades a broker snapshot with store-only knowledge:
// progress payloads for running tasks and revocations raced with the broker.
func (r *InspectorReader) overlayStore(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if r.store == nil || snap.Status.Terminal() {
		return snap, nil
	}
	rec, err := r.store.GetByID(ctx, snap.TaskID)
	if err != nil {
		return snap, nil // broker already answered; store is best-effort here
	}
	switch {
	case rec.Status == StatusRevoked:
		snap.Status = StatusRevoked
	case snap.Status == StatusStarted && rec.ProgressJSON != nil:
		snap.Status = StatusProgress
		snap.Info = json.RawMessage(*rec.ProgressJSON)
	}
	return snap, nil
}

// snapshotFromStore answers polls for tasks the broker no longer tracks.
func (r *InspectorReader) snapshotFromStore(ctx context.Context, taskID string) (Snapshot, error) {
	if r.store == nil {
		return Snapshot{}, ErrTaskNotFound
	}
	rec, err := r.store.GetByID(ctx, taskID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{TaskID: taskID, Status: rec.Status}
	if rec.ResultJSON != nil {
		snap.Result = json.RawMessage(*rec.ResultJSON)
	}
	if rec.ErrorMsg != nil {
		snap.Info = errInfo(*rec.ErrorMsg)
	}
	return snap, nil
}

// Workers returns the number of live worker servers observed by the broker.
func (r *InspectorReader) Workers(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	servers, err := r.inspector.Servers()
	if err != nil {
		if isConnErr(err) {
			return 0, errors.Join(ErrBrokerUnavailable, err)
		}
		return 0, err
	}
	return len(servers), nil
}

func isTaskNotFound(err error) bool {
	return errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound)
}

func errInfo(msg string) json.RawMessage {
	if msg == "" {
		return nil
	}
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
