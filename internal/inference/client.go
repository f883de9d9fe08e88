// Package inference sends page images to a vision-language backend and
// returns the parsed JSON it extracts.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Request is one image plus the prompt describing what to extract
type Request struct {
	Image  []byte // JPEG
	Prompt string
}

// HealthStatus reports whether the backend answers and serves the model
type HealthStatus struct {
	Backend        string `json:"backend"`
	Model          string `json:"model"`
	Reachable      bool   `json:"backend_reachable"`
	ModelAvailable bool   `json:"model_available"`
	Error          string `json:"error,omitempty"`
}

// Backend is one vision-language provider; Generate returns the raw response text
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	Health(ctx context.Context) HealthStatus
}

// Config controls the retry policy
type Config struct {
	MaxRetries int           // additional attempts after the first
	RetryDelay time.Duration // fixed wait between attempts
	Timeout    time.Duration // per attempt
}

// Client wraps a Backend with per-attempt timeouts, retries and failure classes
type Client struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
}

// NewClient creates a client around backend
func NewClient(backend Backend, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backend: backend, cfg: cfg, logger: logger}
}

// Extract runs up to MaxRetries+1 attempts and returns the first response that
// parses as a JSON object or array.
func (c *Client) Extract(ctx context.Context, req Request) (json.RawMessage, error) {
	attempts := c.cfg.MaxRetries + 1
	var last *Error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && c.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, &Error{Class: last.Class, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		start := time.Now()
		raw, err := c.attempt(ctx, req)
		if err == nil {
			c.logger.Info("Inference succeeded",
				slog.String("backend", c.backend.Name()),
				slog.Int("attempt", attempt),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return raw, nil
		}

		last = classify(err)
		c.logger.Warn("Inference attempt failed",
			slog.String("backend", c.backend.Name()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("class", string(last.Class)),
			slog.Any("error", err),
		)

		if ctx.Err() != nil {
			return nil, &Error{Class: last.Class, Attempts: attempt, StatusCode: last.StatusCode, Err: ctx.Err()}
		}
	}

	return nil, &Error{
		Class:      last.Class,
		Attempts:   attempts,
		StatusCode: last.StatusCode,
		Err:        fmt.Errorf("%w: %w", ErrRetriesExhausted, last),
	}
}

func (c *Client) attempt(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.backend.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, err
	}
	return parseJSON(text)
}

// parseJSON strips fences and accepts only an object or array
func parseJSON(text string) (json.RawMessage, error) {
	body := bytes.TrimSpace([]byte(StripCodeFence(text)))
	if len(body) == 0 || (body[0] != '{' && body[0] != '[') {
		return nil, Malformed(fmt.Errorf("response is not a JSON object or array: %q", truncate(string(body), 120)))
	}
	if !json.Valid(body) {
		return nil, Malformed(fmt.Errorf("response is not valid JSON: %q", truncate(string(body), 120)))
	}
	return json.RawMessage(body), nil
}

// Health probes the backend without going through the retry loop
func (c *Client) Health(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.backend.Health(ctx)
}
