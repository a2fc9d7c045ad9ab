package taskqueue

import (
	"encoding/json"
	"time"
)

// Status is the gateway-visible lifecycle status of a delegated task.
// PENDING, STARTED and PROGRESS are transient; SUCCESS, FAILURE and REVOKED
// are terminal. PROGRESS may repeat, every other transition is monotonic.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusStarted  Status = "STARTED"
	StatusProgress Status = "PROGRESS"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusRevoked  Status = "REVOKED"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusRevoked
}

// Kind identifies a task type known to both the gateway and the worker pool.
// The set is closed; submission goes through the typed payload structs below
// so argument-order mistakes cannot reach the wire.
type Kind string

const (
	KindProcessDocument Kind = "doc:process"
	KindChunkDocument   Kind = "doc:chunk"
	KindOCRRegion       Kind = "doc:ocr_region"
)

// ProcessDocumentPayload asks the worker pool to run full document
// processing (layout analysis, OCR, hierarchy extraction) on a stored file.
type ProcessDocumentPayload struct {
	FilePath         string `json:"file_path"`
	OriginalFilename string `json:"original_filename"`
	CallbackURL      string `json:"callback_url,omitempty"`
	UserID           string `json:"user_id,omitempty"`
}

// ChunkDocumentPayload asks the worker pool to split text for embedding.
type ChunkDocumentPayload struct {
	DocumentID   string `json:"document_id"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

// OCRRegionPayload asks the worker pool to OCR a rectangular region of a
// rendered page image.
type OCRRegionPayload struct {
	DocumentID  string  `json:"document_id"`
	PageImage   string  `json:"page_image"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Language    string  `json:"language,omitempty"`
	CallbackURL string  `json:"callback_url,omitempty"`
}

// ProcessingResult is the payload a worker produces once, at SUCCESS.
type ProcessingResult struct {
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	OutputDirectory  string            `json:"output_directory"`
	FilesCreated     map[string]string `json:"files_created"`
	TotalPages       int               `json:"total_pages"`
	OriginalFilename string            `json:"original_filename"`
	ProcessingMode   string            `json:"processing_mode"`
}

// Snapshot is a point-in-time view of a task, merged from the broker and the
// lifecycle store. Result is non-nil only once the task reached SUCCESS and
// is identical on every subsequent read. Info carries worker-reported
// progress or the last error detail for non-terminal states.
type Snapshot struct {
	TaskID string          `json:"task_id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Info   json.RawMessage `json:"info,omitempty"`
}

// StatusEvent is one element of a status stream. Err is set on a read
// failure between the gateway and the broker; such an event carries no
// Status because it says nothing about the task itself.
type StatusEvent struct {
	TaskID    string          `json:"task_id"`
	Status    Status          `json:"status,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Result    json.RawMessage `json:"result,omitempty"`
	Info      json.RawMessage `json:"info,omitempty"`
	Heartbeat bool            `json:"heartbeat,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// TaskRecord is the persisted representation of a task lifecycle.
// It stores the essential metadata for auditing and for answering status
// queries after the broker's result backend expired the task.
type TaskRecord struct {
	ID           string
	Kind         Kind
	Queue        string
	PayloadJSON  string
	Status       Status
	ProgressJSON *string
	ErrorMsg     *string
	ResultJSON   *string
	UserID       string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}
