package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Processor runs the worker-pool side of the queue: an asynq server whose
// handlers are wrapped with lifecycle middleware that keeps the Store in
// step with what the broker sees.
type Processor struct {
	server *asynq.Server
	store  Store
	log    *slog.Logger
}

type ProcessorConfig struct {
	Concurrency int
	Queues      map[string]int
	Logger      *slog.Logger
}

func NewProcessor(redisOpt asynq.RedisConnOpt, store Store, cfg ProcessorConfig) *Processor {
	con := cfg.Concurrency
	if con <= 0 {
		con = 4
	}
	qs := cfg.Queues
	if qs == nil {
		qs = map[string]int{"default": 1}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	server := asynq.NewServer(redisOpt, asynq.Config{Concurrency: con, Queues: qs})
	return &Processor{server: server, store: store, log: log}
}

func (p *Processor) lifecycleMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		id, ok := asynq.GetTaskID(ctx)
		if ok && p.store != nil {
			_ = p.store.MarkStarted(ctx, id, time.Now().UTC())
		}
		p.log.Info("task started", "task_id", id, "kind", t.Type())
		err := next.ProcessTask(ctx, t)
		if ok && p.store != nil {
			if err != nil {
				_ = p.store.MarkFailed(ctx, id, err.Error(), time.Now().UTC())
			} else if rec, gerr := p.store.GetByID(ctx, id); gerr != nil || rec.Status != StatusSuccess {
				// Handlers that produced a result already marked SUCCESS via
				// RecordResult; cover the ones that returned nil without one.
				_ = p.store.MarkSucceeded(ctx, id, "", time.Now().UTC())
			}
		}
		if err != nil {
			p.log.Error("task failed", "task_id", id, "kind", t.Type(), "err", err)
		} else {
			p.log.Info("task finished", "task_id", id, "kind", t.Type())
		}
		return err
	})
}

// Start runs the server with the provided mux, wrapped with lifecycle
// middleware. Blocks until Shutdown.
func (p *Processor) Start(mux *asynq.ServeMux) error {
	if mux == nil {
		mux = asynq.NewServeMux()
	}
	return p.server.Run(p.lifecycleMiddleware(mux))
}

func (p *Processor) Shutdown() { p.server.Shutdown() }

// ReportProgress records a worker-side progress payload for the running
// task. Safe to call from handlers; a missing task id is a no-op.
func ReportProgress(ctx context.Context, store Store, progressJSON string) {
	if store == nil {
		return
	}
	if id, ok := asynq.GetTaskID(ctx); ok {
		_ = store.MarkProgress(ctx, id, progressJSON)
	}
}

// RecordResult stores the result JSON for the running task and writes it to
// the broker's result backend so pollers see it from either side.
func RecordResult(ctx context.Context, store Store, t *asynq.Task, resultJSON []byte) error {
	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write(resultJSON); err != nil {
			return err
		}
	}
	if store != nil {
		if id, ok := asynq.GetTaskID(ctx); ok {
			_ = store.MarkSucceeded(ctx, id, string(resultJSON), time.Now().UTC())
		}
	}
	return nil
}
