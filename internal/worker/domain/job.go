package domain

import (
	"time"

	"github.com/cuongbtq/job-collector/internal/extraction"
)

// Job is the registry view of one submission
type Job struct {
	JobID       string             `json:"job_id" db:"job_id"`
	Status      string             `json:"status" db:"status"`
	Mode        string             `json:"mode" db:"mode"`
	InputKind   string             `json:"input_kind" db:"input_kind"`
	SourceURL   string             `json:"url,omitempty" db:"source_url"`
	Result      *extraction.Record `json:"result,omitempty"`
	ResultFile  string             `json:"file,omitempty" db:"result_file"`
	Error       *JobError          `json:"error,omitempty"`
	WorkerID    string             `json:"worker_id,omitempty" db:"worker_id"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// Clone returns a copy that shares no mutable state with j
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		c.Result = j.Result.Clone()
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Input kinds
const (
	InputPDF    = "pdf"
	InputImages = "images"
)

// DocumentPayload is the raw input of a job; exactly one of PDF or Images is set
type DocumentPayload struct {
	PDF    []byte
	Images [][]byte
	URL    string
	Hints  extraction.Hints
}

// Validate checks that exactly one input kind is present
func (p *DocumentPayload) Validate() error {
	hasPDF := len(p.PDF) > 0
	hasImages := false
	for _, img := range p.Images {
		if len(img) > 0 {
			hasImages = true
			break
		}
	}

	switch {
	case !hasPDF && !hasImages:
		return ErrInputMissing
	case hasPDF && hasImages:
		return ErrAmbiguousInput
	}
	return nil
}

// Kind returns InputPDF or InputImages
func (p *DocumentPayload) Kind() string {
	if len(p.PDF) > 0 {
		return InputPDF
	}
	return InputImages
}

// JobMessage is what travels on the dispatcher queue
type JobMessage struct {
	JobID   string
	Mode    string
	Payload *DocumentPayload
}
