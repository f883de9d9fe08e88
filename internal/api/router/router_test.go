package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/job-collector/internal/api/dto"
	"github.com/cuongbtq/job-collector/internal/api/handler"
	"github.com/cuongbtq/job-collector/internal/extraction"
	"github.com/cuongbtq/job-collector/internal/inference"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
	"github.com/cuongbtq/job-collector/internal/worker/storage"
)

type fakeSubmitter struct {
	registry storage.Registry
	err      error
	payloads []*domain.DocumentPayload
	modes    []string
	n        int
}

func (f *fakeSubmitter) Submit(ctx context.Context, payload *domain.DocumentPayload, mode string) (*domain.Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	f.modes = append(f.modes, mode)
	f.n++
	now := time.Now().UTC()
	job := &domain.Job{
		JobID:     "job-" + string(rune('0'+f.n)),
		Status:    domain.JobStatusQueued,
		InputKind: payload.Kind(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return job, f.registry.Put(ctx, job)
}

func (f *fakeSubmitter) QueueDepth() int { return f.n }

type fakeHealth struct {
	status inference.HealthStatus
}

func (f fakeHealth) Health(context.Context) inference.HealthStatus { return f.status }

type testServer struct {
	engine    *gin.Engine
	registry  *storage.MemoryRegistry
	submitter *fakeSubmitter
}

func newTestServer(t *testing.T, health inference.HealthStatus) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := storage.NewMemoryRegistry()
	sub := &fakeSubmitter{registry: reg}
	engine := SetupRouter(&handler.Dependencies{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Submitter:    sub,
		Registry:     reg,
		Health:       fakeHealth{status: health},
		MaxBodyBytes: 4096,
	})
	return &testServer{engine: engine, registry: reg, submitter: sub}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestSubmit(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantType   string
		check      func(t *testing.T, s *testServer)
	}{
		{
			name:       "pdf accepted",
			path:       "/analyze",
			body:       map[string]any{"pdf": b64("%PDF-1.7"), "url": " https://jobs.example.com/1 ", "metadata": map[string]string{"company": "Acme"}},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, s *testServer) {
				require.Len(t, s.submitter.payloads, 1)
				p := s.submitter.payloads[0]
				assert.Equal(t, "%PDF-1.7", string(p.PDF))
				assert.Equal(t, "https://jobs.example.com/1", p.URL)
				assert.Equal(t, "Acme", p.Hints.Company)
			},
		},
		{
			name:       "single image and list combined",
			path:       "/api/v1/jobs",
			body:       map[string]any{"image": b64("one"), "images": []string{b64("two"), ""}, "mode": "sequential"},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, s *testServer) {
				require.Len(t, s.submitter.payloads, 1)
				assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, s.submitter.payloads[0].Images)
				assert.Equal(t, "sequential", s.submitter.modes[0])
			},
		},
		{
			name:       "data url and unpadded base64",
			path:       "/analyze_images",
			body:       map[string]any{"images": []string{"data:image/png;base64," + b64("png"), strings.TrimRight(b64("ab"), "=")}},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, s *testServer) {
				assert.Equal(t, [][]byte{[]byte("png"), []byte("ab")}, s.submitter.payloads[0].Images)
			},
		},
		{
			name:       "analyze_images ignores pdf",
			path:       "/analyze_images",
			body:       map[string]any{"pdf": b64("%PDF-1.7")},
			wantStatus: http.StatusBadRequest,
			wantType:   dto.ErrorTypeInputMissing,
		},
		{
			name:       "nothing supplied",
			path:       "/analyze",
			body:       map[string]any{"url": "https://jobs.example.com/1"},
			wantStatus: http.StatusBadRequest,
			wantType:   dto.ErrorTypeInputMissing,
		},
		{
			name:       "both supplied",
			path:       "/analyze",
			body:       map[string]any{"pdf": b64("%PDF"), "images": []string{b64("x")}},
			wantStatus: http.StatusBadRequest,
			wantType:   dto.ErrorTypeInputMissing,
		},
		{
			name:       "bad base64",
			path:       "/analyze",
			body:       map[string]any{"pdf": "***"},
			wantStatus: http.StatusBadRequest,
			wantType:   dto.ErrorTypeInputMissing,
		},
		{
			name:       "unknown mode",
			path:       "/analyze",
			body:       map[string]any{"pdf": b64("%PDF"), "mode": "parallel"},
			wantStatus: http.StatusBadRequest,
			wantType:   dto.ErrorTypeInvalidRequest,
		},
		{
			name:       "malformed json",
			path:       "/analyze",
			body:       "{",
			wantStatus: http.StatusBadRequest,
			wantType:   dto.ErrorTypeInvalidRequest,
		},
		{
			name:       "body too large",
			path:       "/api/v1/jobs",
			body:       map[string]any{"pdf": b64(strings.Repeat("x", 8192))},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   dto.ErrorTypeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, inference.HealthStatus{})
			w := s.do(http.MethodPost, tt.path, tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				var resp dto.SubmitResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "queued", resp.Status)
				assert.NotEmpty(t, resp.JobID)
			} else {
				var resp dto.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "error", resp.Status)
				assert.Equal(t, tt.wantType, resp.ErrorType)
				assert.NotEmpty(t, resp.Message)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	s := newTestServer(t, inference.HealthStatus{})
	s.submitter.err = domain.ErrQueueFull

	w := s.do(http.MethodPost, "/analyze", map[string]any{"pdf": b64("%PDF")})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrorTypeQueueFull)
}

func TestGetJobStatus(t *testing.T) {
	s := newTestServer(t, inference.HealthStatus{})
	ctx := context.Background()

	record := &extraction.Record{}
	record.CompanyInfo.Name = extraction.String("Acme")
	for _, job := range []*domain.Job{
		{JobID: "queued", Status: domain.JobStatusQueued},
		{JobID: "running", Status: domain.JobStatusProcessing},
		{JobID: "done", Status: domain.JobStatusSucceeded, Result: record, ResultFile: "Acme.json"},
		{JobID: "broken", Status: domain.JobStatusFailed, Error: &domain.JobError{
			Kind: domain.KindInferenceFailed, Message: "backend timed out", Detail: "timeout after 3 attempts", Artifact: "broken.jpg",
		}},
	} {
		require.NoError(t, s.registry.Put(ctx, job))
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   map[string]any
	}{
		{name: "queued", path: "/status/queued", wantStatus: 200, wantBody: map[string]any{"status": "queued"}},
		{name: "processing", path: "/api/v1/jobs/running", wantStatus: 200, wantBody: map[string]any{"status": "processing"}},
		{
			name: "failed", path: "/status/broken", wantStatus: 200,
			wantBody: map[string]any{
				"status": "error", "error_type": "inference_failed", "message": "backend timed out",
				"detail": "timeout after 3 attempts", "artifact": "broken.jpg",
			},
		},
		{name: "unknown", path: "/status/nope", wantStatus: 404, wantBody: map[string]any{"error": "Job not found"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code)

			var got map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantBody, got)
		})
	}

	t.Run("succeeded", func(t *testing.T) {
		w := s.do(http.MethodGet, "/status/done", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got struct {
			Status string          `json:"status"`
			File   string          `json:"file"`
			Data   json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "success", got.Status)
		assert.Equal(t, "Acme.json", got.File)
		assert.Contains(t, string(got.Data), `"name":"Acme"`)
		assert.Contains(t, string(got.Data), `"description":null`)
	})
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t, inference.HealthStatus{})
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{domain.JobStatusSucceeded, domain.JobStatusFailed, domain.JobStatusSucceeded, domain.JobStatusQueued} {
		require.NoError(t, s.registry.Put(ctx, &domain.Job{
			JobID:     "job-" + string(rune('a'+i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	w := s.do(http.MethodGet, "/api/v1/jobs?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Jobs, 2)
	assert.Equal(t, "job-d", page.Jobs[0].JobID)
	assert.Equal(t, "queued", page.Jobs[0].Status)
	require.NotEmpty(t, page.NextCursor)

	w = s.do(http.MethodGet, "/api/v1/jobs?page_size=2&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var next dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	require.Len(t, next.Jobs, 2)
	assert.Equal(t, "job-b", next.Jobs[0].JobID)
	assert.Equal(t, "job-a", next.Jobs[1].JobID)
	assert.Empty(t, next.NextCursor)

	w = s.do(http.MethodGet, "/api/v1/jobs?status=success", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var succeeded dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &succeeded))
	require.Len(t, succeeded.Jobs, 2)
	for _, j := range succeeded.Jobs {
		assert.Equal(t, "success", j.Status)
	}

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/jobs?status=bogus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/jobs?cursor=!!", nil).Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     inference.HealthStatus
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy",
			status:     inference.HealthStatus{Backend: "ollama", Model: "qwen2.5vl:3b", Reachable: true, ModelAvailable: true},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "model missing",
			status:     inference.HealthStatus{Backend: "ollama", Model: "qwen2.5vl:3b", Reachable: true},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
		{
			name:       "unreachable",
			status:     inference.HealthStatus{Backend: "ollama", Error: "connection refused"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.status)
			w := s.do(http.MethodGet, "/health", nil)
			require.Equal(t, tt.wantCode, w.Code)

			var resp dto.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.status.Reachable, resp.BackendReachable)
			assert.Equal(t, tt.status.ModelAvailable, resp.ModelAvailable)
			assert.Equal(t, tt.status.Model, resp.Model)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, inference.HealthStatus{})
	w := s.do(http.MethodOptions, "/analyze", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
