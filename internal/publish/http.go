package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultPath is where the downstream service accepts records
const DefaultPath = "/api/v1/jobs"

// HTTPConfig configures the downstream POST
type HTTPConfig struct {
	URL     string
	Path    string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPPublisher POSTs events to the downstream core service
type HTTPPublisher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPPublisher creates a publisher posting to cfg.URL + cfg.Path
func NewHTTPPublisher(cfg HTTPConfig) *HTTPPublisher {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPPublisher{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/" + strings.TrimLeft(path, "/"),
		client:   client,
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post job %s: %w", event.JobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("downstream rejected job %s: status %d: %s", event.JobID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
