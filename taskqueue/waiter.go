package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

// Waiter blocks a caller until a task reaches a terminal state or a deadline
// elapses. It is a synchronous-wait convenience over inherently asynchronous
// execution: a bounded poll, not a push channel into the broker.
type Waiter struct {
	reader   StatusReader
	interval time.Duration
}

func NewWaiter(reader StatusReader, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Waiter{reader: reader, interval: interval}
}

// Wait polls until the task is terminal, the timeout elapses, or ctx is
// cancelled. On SUCCESS it returns the processing result. On FAILURE it
// returns a TaskFailedError with the worker-reported detail. On timeout it
// returns ErrWaitTimeout; the caller falls back to polling by handle. A
// cancelled ctx is returned as-is: a caller that went away is not a timeout.
func (w *Waiter) Wait(ctx context.Context, taskID string, timeout time.Duration) (json.RawMessage, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		snap, err := w.reader.Snapshot(wctx, taskID)
		if err != nil {
			if wctx.Err() != nil {
				return nil, w.deadlineErr(ctx)
			}
			return nil, err
		}
		switch snap.Status {
		case StatusSuccess:
			return snap.Result, nil
		case StatusFailure:
			return nil, &TaskFailedError{TaskID: taskID, Detail: failureDetail(snap)}
		case StatusRevoked:
			return nil, &TaskFailedError{TaskID: taskID, Detail: "task revoked"}
		}
		select {
		case <-wctx.Done():
			return nil, w.deadlineErr(ctx)
		case <-ticker.C:
		}
	}
}

// deadlineErr separates the two ways a wait can end early: the parent
// context dying wins over the wait deadline.
func (w *Waiter) deadlineErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrWaitTimeout
}

func failureDetail(snap Snapshot) string {
	if len(snap.Info) == 0 {
		return "worker reported failure"
	}
	var v struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(snap.Info, &v); err == nil && v.Error != "" {
		return v.Error
	}
	return string(snap.Info)
}
