package dto

import "github.com/cuongbtq/job-collector/internal/extraction"

// Response status values
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Error types returned synchronously by the API
const (
	ErrorTypeInputMissing   = "input_missing"
	ErrorTypeInvalidRequest = "invalid_request"
	ErrorTypeQueueFull      = "queue_full"
	ErrorTypeInternal       = "internal"
)

// AnalyzeRequest is the submission body. Files arrive base64 encoded.
type AnalyzeRequest struct {
	PDF      string            `json:"pdf"`
	Image    string            `json:"image"`
	Images   []string          `json:"images"`
	URL      string            `json:"url"`
	Metadata *extraction.Hints `json:"metadata"`
	Mode     string            `json:"mode"`
}

type SubmitResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// StatusResponse is the polling view of one job
type StatusResponse struct {
	Status    string             `json:"status"`
	Data      *extraction.Record `json:"data,omitempty"`
	File      string             `json:"file,omitempty"`
	Message   string             `json:"message,omitempty"`
	ErrorType string             `json:"error_type,omitempty"`
	Detail    string             `json:"detail,omitempty"`
	Artifact  string             `json:"artifact,omitempty"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Mode      string `json:"mode"`
	InputKind string `json:"input_kind"`
	URL       string `json:"url,omitempty"`
	File      string `json:"file,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Backend          string `json:"backend"`
	Model            string `json:"model"`
	BackendReachable bool   `json:"backend_reachable"`
	ModelAvailable   bool   `json:"model_available"`
	QueueDepth       int    `json:"queue_depth"`
	Error            string `json:"error,omitempty"`
}
