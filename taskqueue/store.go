package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Store abstracts persistence for task lifecycle records.
// Implementations must be safe for concurrent use.
type Store interface {
	InsertSubmitted(ctx context.Context, rec TaskRecord) error
	MarkStarted(ctx context.Context, taskID string, startedAt time.Time) error
	MarkProgress(ctx context.Context, taskID string, progressJSON string) error
	MarkSucceeded(ctx context.Context, taskID string, resultJSON string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, taskID string, errorMsg string, finishedAt time.Time) error
	MarkRevoked(ctx context.Context, taskID string, finishedAt time.Time) error
	GetByID(ctx context.Context, taskID string) (*TaskRecord, error)
}

// SQLStore is a reference implementation backed by a relational DB
// (SQLite/Postgres/MySQL). Table schema is provided in migrations.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// exec runs the '?' placeholder form and falls back to the '$N' form so the
// same store works against SQLite/MySQL and Postgres without driver sniffing.
func (s *SQLStore) exec(ctx context.Context, query, queryPg string, args ...any) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		_, err2 := s.db.ExecContext(ctx, queryPg, args...)
		return err2
	}
	return nil
}

func (s *SQLStore) InsertSubmitted(ctx context.Context, rec TaskRecord) error {
	return s.exec(ctx,
		`INSERT INTO doc_tasks (id, kind, queue, payload_json, status, user_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		`INSERT INTO doc_tasks (id, kind, queue, payload_json, status, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, string(rec.Kind), rec.Queue, rec.PayloadJSON, string(StatusPending), rec.UserID, rec.CreatedAt.UTC())
}

func (s *SQLStore) MarkStarted(ctx context.Context, taskID string, startedAt time.Time) error {
	return s.exec(ctx,
		`UPDATE doc_tasks SET status = ?, started_at = ? WHERE id = ?`,
		`UPDATE doc_tasks SET status = $1, started_at = $2 WHERE id = $3`,
		string(StatusStarted), startedAt.UTC(), taskID)
}

func (s *SQLStore) MarkProgress(ctx context.Context, taskID string, progressJSON string) error {
	return s.exec(ctx,
		`UPDATE doc_tasks SET status = ?, progress_json = ? WHERE id = ?`,
		`UPDATE doc_tasks SET status = $1, progress_json = $2 WHERE id = $3`,
		string(StatusProgress), progressJSON, taskID)
}

func (s *SQLStore) MarkSucceeded(ctx context.Context, taskID string, resultJSON string, finishedAt time.Time) error {
	return s.exec(ctx,
		`UPDATE doc_tasks SET status = ?, result_json = ?, finished_at = ? WHERE id = ?`,
		`UPDATE doc_tasks SET status = $1, result_json = $2, finished_at = $3 WHERE id = $4`,
		string(StatusSuccess), resultJSON, finishedAt.UTC(), taskID)
}

func (s *SQLStore) MarkFailed(ctx context.Context, taskID string, errorMsg string, finishedAt time.Time) error {
	return s.exec(ctx,
		`UPDATE doc_tasks SET status = ?, error_msg = ?, finished_at = ? WHERE id = ?`,
		`UPDATE doc_tasks SET status = $1, error_msg = $2, finished_at = $3 WHERE id = $4`,
		string(StatusFailure), errorMsg, finishedAt.UTC(), taskID)
}

func (s *SQLStore) MarkRevoked(ctx context.Context, taskID string, finishedAt time.Time) error {
	return s.exec(ctx,
		`UPDATE doc_tasks SET status = ?, finished_at = ? WHERE id = ?`,
		`UPDATE doc_tasks SET status = $1, finished_at = $2 WHERE id = $3`,
		string(StatusRevoked), finishedAt.UTC(), taskID)
}

func (s *SQLStore) GetByID(ctx context.Context, taskID string) (*TaskRecord, error) {
	if s.db == nil {
		return nil, errors.New("nil db")
	}
	const cols = `id, kind, queue, payload_json, status, progress_json, error_msg, result_json, user_id, created_at, started_at, finished_at`
	rec := TaskRecord{}
	var kind, status string
	var progressJSON, errorMsg, resultJSON sql.NullString
	var startedAt, finishedAt sql.NullTime
	scan := func(row *sql.Row) error {
		return row.Scan(&rec.ID, &kind, &rec.Queue, &rec.PayloadJSON, &status,
			&progressJSON, &errorMsg, &resultJSON, &rec.UserID,
			&rec.CreatedAt, &startedAt, &finishedAt)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM doc_tasks WHERE id = ?`, taskID)
	if err := scan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		row = s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM doc_tasks WHERE id = $1`, taskID)
		if err2 := scan(row); err2 != nil {
			if errors.Is(err2, sql.ErrNoRows) {
				return nil, ErrTaskNotFound
			}
			return nil, err2
		}
	}
	rec.Kind = Kind(kind)
	rec.Status = Status(status)
	if progressJSON.Valid {
		v := progressJSON.String
		rec.ProgressJSON = &v
	}
	if errorMsg.Valid {
		v := errorMsg.String
		rec.ErrorMsg = &v
	}
	if resultJSON.Valid {
		v := resultJSON.String
		rec.ResultJSON = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}
