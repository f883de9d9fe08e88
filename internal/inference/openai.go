package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIConfig configures an OpenAI-compatible chat completion backend
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses api.openai.com
	Model      string
	HTTPClient *http.Client
}

// OpenAIBackend sends the page as an image content part
type OpenAIBackend struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIBackend creates an OpenAI backend. The SDK's own retries are
// disabled because Client owns the retry policy.
func NewOpenAIBackend(cfg OpenAIConfig, logger *slog.Logger) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIBackend{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

// Generate asks for a JSON object describing the image
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Image)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", b.wrap(err)
	}
	if len(completion.Choices) == 0 {
		return "", Malformed(errors.New("no completion choices returned"))
	}
	return completion.Choices[0].Message.Content, nil
}

// Health resolves the configured model
func (b *OpenAIBackend) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Backend: b.Name(), Model: b.model}

	_, err := b.client.Models.Get(ctx, b.model)
	if err == nil {
		status.Reachable = true
		status.ModelAvailable = true
		return status
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		// the API answered; the model is not usable with this key
		status.Reachable = true
	}
	status.Error = err.Error()
	return status
}

func (b *OpenAIBackend) wrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{Class: ClassBackendRejected, StatusCode: apiErr.StatusCode, Err: fmt.Errorf("openai: %w", err)}
	}
	return err
}
