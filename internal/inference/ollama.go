package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OllamaConfig configures the Ollama backend
type OllamaConfig struct {
	BaseURL    string // e.g. http://localhost:11434; a trailing /api/generate is tolerated
	Model      string
	NumCtx     int
	NumBatch   int
	HTTPClient *http.Client
}

// OllamaBackend talks to an Ollama server's generate API
type OllamaBackend struct {
	cfg    OllamaConfig
	client *http.Client
	logger *slog.Logger
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images"`
	Format  string        `json:"format"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumBatch    int     `json:"num_batch,omitempty"`
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response *string `json:"response"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewOllamaBackend creates an Ollama backend
func NewOllamaBackend(cfg OllamaConfig, logger *slog.Logger) *OllamaBackend {
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/api/generate")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	client := cfg.HTTPClient
	if client == nil {
		// per-attempt deadlines come from the caller's context
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaBackend{cfg: cfg, client: client, logger: logger}
}

func (o *OllamaBackend) Name() string { return "ollama" }

// Generate posts the image and prompt and returns the envelope's response text
func (o *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	body := ollamaGenerateRequest{
		Model:  o.cfg.Model,
		Prompt: req.Prompt,
		Images: []string{base64.StdEncoding.EncodeToString(req.Image)},
		Format: "json",
		Stream: false,
		Options: ollamaOptions{
			NumCtx:      o.cfg.NumCtx,
			NumBatch:    o.cfg.NumBatch,
			Temperature: 0,
		},
	}

	raw, err := o.do(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		return "", err
	}

	var env ollamaGenerateResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", Malformed(fmt.Errorf("decode envelope: %w", err))
	}
	if env.Response == nil {
		return "", Malformed(fmt.Errorf("envelope has no response field"))
	}
	return *env.Response, nil
}

// Health lists local models and checks that the configured one is present
func (o *OllamaBackend) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Backend: o.Name(), Model: o.cfg.Model}

	raw, err := o.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true

	var tags ollamaTagsResponse
	if err := json.Unmarshal(raw, &tags); err != nil {
		status.Error = fmt.Sprintf("decode tags: %v", err)
		return status
	}
	for _, m := range tags.Models {
		if modelMatches(m.Name, o.cfg.Model) || modelMatches(m.Model, o.cfg.Model) {
			status.ModelAvailable = true
			break
		}
	}
	return status
}

// modelMatches treats "name" and "name:latest" as the same model
func modelMatches(have, want string) bool {
	if have == "" || want == "" {
		return false
	}
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return have == want+":latest"
	}
	return false
}

func (o *OllamaBackend) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Debug("ollama request failed",
			slog.String("req_id", reqID),
			slog.String("path", path),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			slog.Any("error", err),
		)
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			o.logger.Warn("ollama response body close error", slog.Any("error", err))
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("ollama response",
		slog.String("req_id", reqID),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode/100 != 2 {
		return nil, Rejected(resp.StatusCode, string(raw))
	}
	return raw, nil
}
