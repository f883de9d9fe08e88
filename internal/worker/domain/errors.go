package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id is unknown to the registry
	ErrJobNotFound = errors.New("job not found")

	// ErrStateConflict is returned when a compare-and-swap finds the job in another state
	ErrStateConflict = errors.New("job state conflict")

	// ErrInvalidTransition is returned for state changes outside queued → processing → terminal
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrQueueFull is returned when the dispatcher queue cannot accept another job
	ErrQueueFull = errors.New("job queue is full")

	// ErrInputMissing is returned when a payload carries neither a PDF nor images
	ErrInputMissing = errors.New("no pdf or images supplied")

	// ErrAmbiguousInput is returned when a payload carries both a PDF and images
	ErrAmbiguousInput = errors.New("pdf and images are mutually exclusive")
)

// ErrorKind names the component that caused a job to fail
type ErrorKind string

const (
	KindInputMissing     ErrorKind = "input_missing"
	KindConversionFailed ErrorKind = "conversion_failed"
	KindMergeFailed      ErrorKind = "merge_failed"
	KindInferenceFailed  ErrorKind = "inference_failed"
	KindInternal         ErrorKind = "internal"
)

// JobError is the failure recorded on a job
type JobError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	Artifact string    `json:"artifact,omitempty"`

	Err error `json:"-"`
}

func (e *JobError) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Message + ": " + e.Detail
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a job error of the given kind wrapping err
func NewJobError(kind ErrorKind, message string, err error) *JobError {
	je := &JobError{Kind: kind, Message: message, Err: err}
	if err != nil {
		je.Detail = err.Error()
	}
	return je
}
