package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedReader returns snapshots in sequence, repeating the last one.
type scriptedReader struct {
	mu    sync.Mutex
	snaps []Snapshot
	errs  []error
	calls int
}

func (r *scriptedReader) Snapshot(ctx context.Context, taskID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	if i >= len(r.snaps) {
		i = len(r.snaps) - 1
	}
	r.calls++
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	snap := r.snaps[i]
	snap.TaskID = taskID
	return snap, err
}

func TestWaiter_Success(t *testing.T) {
	result := json.RawMessage(`{"status":"success","total_pages":2}`)
	reader := &scriptedReader{snaps: []Snapshot{
		{Status: StatusPending},
		{Status: StatusStarted},
		{Status: StatusSuccess, Result: result},
	}}
	w := NewWaiter(reader, 5*time.Millisecond)

	got, err := w.Wait(context.Background(), "t1", time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(got) != string(result) {
		t.Fatalf("unexpected result: %s", got)
	}
}

func TestWaiter_Failure(t *testing.T) {
	reader := &scriptedReader{snaps: []Snapshot{
		{Status: StatusStarted},
		{Status: StatusFailure, Info: json.RawMessage(`{"error":"layout engine crashed"}`)},
	}}
	w := NewWaiter(reader, 5*time.Millisecond)

	_, err := w.Wait(context.Background(), "t1", time.Second)
	var tfe *TaskFailedError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected TaskFailedError, got %v", err)
	}
	if tfe.Detail != "layout engine crashed" {
		t.Fatalf("unexpected detail: %q", tfe.Detail)
	}
}

func TestWaiter_TimeoutBounded(t *testing.T) {
	reader := &scriptedReader{snaps: []Snapshot{{Status: StatusPending}}}
	w := NewWaiter(reader, 10*time.Millisecond)

	start := time.Now()
	_, err := w.Wait(context.Background(), "t1", 50*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	// Must not hang noticeably past the deadline plus scheduling slack.
	if elapsed > 500*time.Millisecond {
		t.Fatalf("wait overran deadline: %v", elapsed)
	}
}

func TestWaiter_CompletionJustAfterDeadline(t *testing.T) {
	// Worker "completes" only after the wait deadline; the caller must get a
	// timeout, not the late result.
	reader := &scriptedReader{snaps: []Snapshot{
		{Status: StatusStarted}, {Status: StatusStarted}, {Status: StatusStarted},
		{Status: StatusStarted}, {Status: StatusStarted}, {Status: StatusStarted},
		{Status: StatusSuccess, Result: json.RawMessage(`{}`)},
	}}
	w := NewWaiter(reader, 20*time.Millisecond)

	_, err := w.Wait(context.Background(), "t1", 60*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestWaiter_CallerDisconnect(t *testing.T) {
	// A cancelled caller must get the cancellation back, not ErrWaitTimeout:
	// the handler would otherwise write a "still processing" response to a
	// connection that no longer exists.
	reader := &scriptedReader{snaps: []Snapshot{{Status: StatusPending}}}
	w := NewWaiter(reader, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := w.Wait(ctx, "t1", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("caller disconnect misreported as timeout")
	}
}

func TestWaiter_PropagatesReadError(t *testing.T) {
	boom := errors.New("redis gone")
	reader := &scriptedReader{snaps: []Snapshot{{}}, errs: []error{boom}}
	w := NewWaiter(reader, 5*time.Millisecond)

	_, err := w.Wait(context.Background(), "t1", time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}
