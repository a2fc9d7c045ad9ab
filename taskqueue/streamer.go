package taskqueue

import (
	"context"
	"time"
)

// Streamer republishes task status transitions as a live event sequence for
// a single caller. Each Stream call starts a fresh poll sequence from the
// current status; there is no replay of history.
type Streamer struct {
	reader    StatusReader
	interval  time.Duration
	heartbeat time.Duration
}

func NewStreamer(reader StatusReader, interval, heartbeat time.Duration) *Streamer {
	if interval <= 0 {
		interval = time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 2 * time.Second
	}
	return &Streamer{reader: reader, interval: interval, heartbeat: heartbeat}
}

// Stream polls the task status and sends an event on every change, plus a
// heartbeat event when nothing changed for the heartbeat interval. The
// returned channel closes after the terminal event was delivered, on context
// cancellation, or on a read error. A read error is surfaced as an event
// with Err set and no Status: broker trouble is not a worker FAILURE, the
// task may still be running. The poll loop suspends between iterations; it
// never busy-loops.
func (s *Streamer) Stream(ctx context.Context, taskID string) <-chan StatusEvent {
	events := make(chan StatusEvent)
	go func() {
		defer close(events)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		var last Status
		first := true
		lastEmit := time.Now()

		for {
			snap, err := s.reader.Snapshot(ctx, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case events <- StatusEvent{TaskID: taskID, Timestamp: time.Now().UTC(), Err: err.Error()}:
				case <-ctx.Done():
				}
				return
			}

			changed := first || snap.Status != last || snap.Status == StatusProgress
			stale := time.Since(lastEmit) >= s.heartbeat
			if changed || stale {
				ev := StatusEvent{
					TaskID:    taskID,
					Status:    snap.Status,
					Timestamp: time.Now().UTC(),
					Result:    snap.Result,
					Info:      snap.Info,
					Heartbeat: !changed,
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
				last = snap.Status
				first = false
				lastEmit = time.Now()
			}

			if snap.Status.Terminal() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return events
}
