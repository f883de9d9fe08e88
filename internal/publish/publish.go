// Package publish forwards completed records to downstream consumers.
// Delivery is best effort: callers log failures and move on.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/job-collector/internal/extraction"
)

// Event is the message sent for every succeeded job
type Event struct {
	JobID       string             `json:"job_id"`
	File        string             `json:"file"`
	SourceURL   string             `json:"url,omitempty"`
	Record      *extraction.Record `json:"data"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Publisher delivers one event
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards events
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
