package gateway

import (
	"encoding/json"

	"github.com/mohans/docgateway/taskqueue"
)

// DocumentProcessResponse is the response shape for document submission,
// shared by the synchronous and asynchronous paths.
type DocumentProcessResponse struct {
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	OutputDirectory  string            `json:"output_directory"`
	FilesCreated     map[string]string `json:"files_created"`
	TotalPages       int               `json:"total_pages"`
	OriginalFilename string            `json:"original_filename"`
	ProcessingMode   string            `json:"processing_mode"`
	TaskID           string            `json:"task_id,omitempty"`
}

// TaskStatusResponse is a single status snapshot.
type TaskStatusResponse struct {
	TaskID string           `json:"task_id"`
	Status taskqueue.Status `json:"status"`
	Result json.RawMessage  `json:"result,omitempty"`
	Info   json.RawMessage  `json:"info,omitempty"`
}

// ServiceStatusResponse reports worker-pool health.
type ServiceStatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

// ChunkRequest asks for synchronous text chunking.
type ChunkRequest struct {
	Text         string `json:"text" binding:"required"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// ChunkResponse carries the produced chunks.
type ChunkResponse struct {
	Status     string        `json:"status"`
	ChunkCount int           `json:"chunk_count"`
	Chunks     []string      `json:"chunks"`
	Settings   ChunkSettings `json:"settings"`
}

type ChunkSettings struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// CropImageRequest selects the region to cut out of a page image.
type CropImageRequest struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width" binding:"required"`
	Height      float64 `json:"height" binding:"required"`
	ElementID   string  `json:"element_id"`
	ElementType string  `json:"element_type"`
}

// CropImageResponse describes the stored crop.
type CropImageResponse struct {
	Success     bool   `json:"success"`
	ImagePath   string `json:"image_path"`
	FullPath    string `json:"full_path"`
	DownloadURL string `json:"download_url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FileSize    int64  `json:"file_size"`
}

// OCRRegionResponse is the synchronous region OCR result.
type OCRRegionResponse struct {
	Status     string       `json:"status"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Language   string       `json:"language"`
	Region     RegionCoords `json:"region"`
}

type RegionCoords struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OCRMetadataResponse wraps hierarchy metadata for a processed document.
type OCRMetadataResponse struct {
	Metadata      json.RawMessage `json:"metadata"`
	IsEdited      bool            `json:"is_edited"`
	EditingStatus string          `json:"editing_status"`
	Source        string          `json:"source"`
}

// OCRMetadataUpdateRequest replaces the edited metadata copy.
type OCRMetadataUpdateRequest struct {
	Metadata json.RawMessage `json:"metadata" binding:"required"`
}

// SaveCroppedImageRequest promotes a temporary crop to permanent storage.
type SaveCroppedImageRequest struct {
	RectangleID   string `json:"rectangleId" binding:"required"`
	TempImagePath string `json:"tempImagePath" binding:"required"`
	ElementType   string `json:"elementType"`
}
