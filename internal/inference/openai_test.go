package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBackend_Generate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"job_summary\":{\"title\":\"SRE\"}}"}}]
		}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"}, nil)
	client := NewClient(backend, Config{Timeout: 2 * time.Second}, nil)

	raw, err := client.Extract(context.Background(), Request{Image: []byte("jpeg"), Prompt: "extract"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_summary":{"title":"SRE"}}`, string(raw))

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "extract", parts[0].(map[string]any)["text"])
	imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/jpeg;base64,anBlZw==", imageURL)
}

func TestOpenAIBackend_RejectedStatus(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid image","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"}, nil)
	client := NewClient(backend, Config{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: 2 * time.Second}, nil)

	_, err := client.Extract(context.Background(), Request{Image: []byte("jpeg")})

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ClassBackendRejected, ie.Class)
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.Equal(t, 2, calls)
}
