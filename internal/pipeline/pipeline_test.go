package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/job-collector/internal/extraction"
	"github.com/cuongbtq/job-collector/internal/imaging"
	"github.com/cuongbtq/job-collector/internal/inference"
	"github.com/cuongbtq/job-collector/internal/prompt"
	"github.com/cuongbtq/job-collector/internal/rasterize"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

func pagePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: uint8(x % 255)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeRasterizer struct {
	pages [][]byte
	err   error
}

func (f *fakeRasterizer) Rasterize(context.Context, []byte) ([][]byte, error) {
	return f.pages, f.err
}

// fakeExtractor answers calls in order and records the prompts it saw
type fakeExtractor struct {
	mu      sync.Mutex
	answers []func() (json.RawMessage, error)
	prompts []string
	images  [][]byte
}

func (f *fakeExtractor) Extract(_ context.Context, req inference.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.prompts)
	f.prompts = append(f.prompts, req.Prompt)
	f.images = append(f.images, req.Image)
	if n >= len(f.answers) {
		n = len(f.answers) - 1
	}
	return f.answers[n]()
}

func answer(s string) func() (json.RawMessage, error) {
	return func() (json.RawMessage, error) { return json.RawMessage(s), nil }
}

func failing(err error) func() (json.RawMessage, error) {
	return func() (json.RawMessage, error) { return nil, err }
}

type memArtifacts struct {
	saved map[string][]byte
}

func (m *memArtifacts) SaveImage(name string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[name] = data
	return name + ".jpg", nil
}

func newPipeline(t *testing.T, maxPages int, r Rasterizer, x Extractor, a ArtifactStore) *Pipeline {
	t.Helper()
	prompts, err := prompt.New("")
	require.NoError(t, err)
	validator, err := extraction.NewValidator(nil)
	require.NoError(t, err)

	opts := imaging.Options{MaxWidth: 200, Quality: 75}
	p := New(Config{MaxPages: maxPages}, Deps{
		Rasterizer: r,
		Normalizer: imaging.NewNormalizer(opts, nil),
		Compositor: imaging.NewCompositor(opts, nil),
		Extractor:  x,
		Prompts:    prompts,
		Validator:  validator,
		Artifacts:  a,
	})
	p.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestPipeline_SingleFromPDF(t *testing.T) {
	raster := &fakeRasterizer{pages: [][]byte{pagePNG(t, 100, 40), pagePNG(t, 100, 40), pagePNG(t, 100, 40)}}
	extractor := &fakeExtractor{answers: []func() (json.RawMessage, error){
		answer(`{"company_info":{"name":"Acme"},"job_summary":{"title":"Senior Software Engineer"},"meta":{"industry_domain":""}}`),
	}}
	artifacts := &memArtifacts{}
	p := newPipeline(t, 2, raster, extractor, artifacts)

	out, err := p.Run(context.Background(), Input{
		JobID:   "job-1",
		Payload: &domain.DocumentPayload{PDF: []byte("%PDF-1.7"), URL: "https://jobs.example.com/1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, 1, out.Calls)
	assert.Equal(t, "job-1.jpg", out.Artifact)
	require.Len(t, extractor.images, 1)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(extractor.images[0]))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 80, cfg.Height)

	r := out.Record
	assert.Equal(t, "IT/Software", *r.Meta.IndustryDomain)
	assert.Equal(t, "https://jobs.example.com/1", *r.Meta.URL)
	assert.Equal(t, "2026-10-18", *r.Meta.CapturedAt)
	assert.Contains(t, extractor.prompts[0], "No metadata")
}

func TestPipeline_SequentialReconciles(t *testing.T) {
	extractor := &fakeExtractor{answers: []func() (json.RawMessage, error){
		answer(`{"job_summary":{"title":"A"},"analysis":{"benefits":["X","Y"]}}`),
		failing(&inference.Error{Class: inference.ClassTimeout, Attempts: 3}),
		answer("{\"job_summary\":{\"title\":\"B\"},\"analysis\":{\"benefits\":[\"Y\",\"Z\"]},\"meta\":{\"industry_domain\":\"Finance\"}}"),
	}}
	p := newPipeline(t, 5, nil, extractor, nil)

	out, err := p.Run(context.Background(), Input{
		JobID:    "job-2",
		Strategy: StrategySequential,
		Payload: &domain.DocumentPayload{
			Images: [][]byte{pagePNG(t, 50, 20), pagePNG(t, 50, 20), pagePNG(t, 50, 20)},
			Hints:  extraction.Hints{Company: "Hint Bank", Title: "ignored"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Calls)
	assert.Contains(t, extractor.prompts[1], "page 2 of 3")
	assert.Contains(t, extractor.prompts[0], "company: Hint Bank")

	r := out.Record
	assert.Equal(t, "A", *r.JobSummary.Title)
	assert.Equal(t, []string{"X", "Y", "Z"}, r.Analysis.Benefits)
	assert.Equal(t, "Hint Bank", *r.CompanyInfo.Name)
	assert.Equal(t, "Finance", *r.Meta.IndustryDomain)
}

func TestPipeline_ImagesCappedAtMaxPages(t *testing.T) {
	extractor := &fakeExtractor{answers: []func() (json.RawMessage, error){answer(`{"job_summary":{"title":"Nurse"}}`)}}
	p := newPipeline(t, 2, nil, extractor, nil)

	out, err := p.Run(context.Background(), Input{
		JobID:    "job-3",
		Strategy: StrategySequential,
		Payload:  &domain.DocumentPayload{Images: [][]byte{pagePNG(t, 10, 10), nil, pagePNG(t, 10, 10), pagePNG(t, 10, 10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, 2, out.Calls)
}

func TestPipeline_Failures(t *testing.T) {
	exhausted := &inference.Error{Class: inference.ClassTimeout, Attempts: 3, Err: inference.ErrRetriesExhausted}

	tests := []struct {
		name         string
		payload      *domain.DocumentPayload
		raster       Rasterizer
		answers      []func() (json.RawMessage, error)
		strategy     Strategy
		wantKind     domain.ErrorKind
		wantArtifact bool
	}{
		{
			name:     "no input",
			payload:  &domain.DocumentPayload{},
			wantKind: domain.KindInputMissing,
		},
		{
			name:     "rasterizer cannot open document",
			payload:  &domain.DocumentPayload{PDF: []byte("junk")},
			raster:   &fakeRasterizer{err: fmt.Errorf("%w: not a pdf", rasterize.ErrConversionFailed)},
			wantKind: domain.KindConversionFailed,
		},
		{
			name:     "rasterizer io failure",
			payload:  &domain.DocumentPayload{PDF: []byte("%PDF-")},
			raster:   &fakeRasterizer{err: errors.New("disk full")},
			wantKind: domain.KindInternal,
		},
		{
			name:         "inference exhausted in single mode",
			payload:      &domain.DocumentPayload{Images: [][]byte{pagePNG(t, 10, 10)}},
			answers:      []func() (json.RawMessage, error){failing(exhausted)},
			wantKind:     domain.KindInferenceFailed,
			wantArtifact: true,
		},
		{
			name:         "every page fails in sequential mode",
			payload:      &domain.DocumentPayload{Images: [][]byte{pagePNG(t, 10, 10), pagePNG(t, 10, 10)}},
			answers:      []func() (json.RawMessage, error){failing(exhausted)},
			strategy:     StrategySequential,
			wantKind:     domain.KindInferenceFailed,
			wantArtifact: true,
		},
		{
			name:         "response is not an extraction object",
			payload:      &domain.DocumentPayload{Images: [][]byte{pagePNG(t, 10, 10)}},
			answers:      []func() (json.RawMessage, error){answer(`["a","b"]`)},
			wantKind:     domain.KindInferenceFailed,
			wantArtifact: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &fakeExtractor{answers: tt.answers}
			p := newPipeline(t, 5, tt.raster, extractor, &memArtifacts{})

			_, err := p.Run(context.Background(), Input{JobID: "j", Payload: tt.payload, Strategy: tt.strategy})
			require.Error(t, err)

			var je *domain.JobError
			require.ErrorAs(t, err, &je)
			assert.Equal(t, tt.wantKind, je.Kind)
			if tt.wantArtifact {
				assert.Equal(t, "j.jpg", je.Artifact)
			}
		})
	}
}

func TestPipeline_ArrayResponseExpanded(t *testing.T) {
	extractor := &fakeExtractor{answers: []func() (json.RawMessage, error){
		answer(`[{"job_summary":{"title":"First"}},{"job_summary":{"title":"Second","company":"Beta"}}]`),
	}}
	p := newPipeline(t, 5, nil, extractor, nil)

	out, err := p.Run(context.Background(), Input{JobID: "j", Payload: &domain.DocumentPayload{Images: [][]byte{pagePNG(t, 10, 10)}}})
	require.NoError(t, err)
	assert.Equal(t, "First", *out.Record.JobSummary.Title)
	assert.Equal(t, "Beta", *out.Record.CompanyInfo.Name)
}
