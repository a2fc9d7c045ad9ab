// Package taskqueue is the delegation layer between the gateway and the
// external worker pool. It wraps asynq to submit typed document-processing
// tasks, persists lifecycle metadata in a relational database, and offers
// three read paths over a submitted task: a single snapshot, a bounded
// blocking wait, and a live status stream.
//
// Quick start:
//  1. Create a SQL DB and apply the migration in taskqueue/migrations.
//  2. Wire a *sql.DB and create taskqueue.NewSQLStore(db).
//  3. Create a Client with NewClient(redis, store, ...). Submit with the
//     typed Submit* methods.
//  4. Poll with an InspectorReader, wait with a Waiter, or stream with a
//     Streamer.
//  5. On the worker side, create a Processor and register handlers via
//     asynq.ServeMux; lifecycle updates happen in middleware.
package taskqueue
