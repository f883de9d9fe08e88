// Package pipeline turns one document payload into one canonical record.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-collector/internal/classify"
	"github.com/cuongbtq/job-collector/internal/extraction"
	"github.com/cuongbtq/job-collector/internal/imaging"
	"github.com/cuongbtq/job-collector/internal/inference"
	"github.com/cuongbtq/job-collector/internal/rasterize"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

// Strategy selects how pages reach the inference backend
type Strategy string

const (
	// StrategySingle composites every page into one image and makes one call
	StrategySingle Strategy = domain.ModeSingle
	// StrategySequential makes one call per page and reconciles the partials
	StrategySequential Strategy = domain.ModeSequential
)

type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([][]byte, error)
}

type Normalizer interface {
	NormalizeAll(ctx context.Context, raws [][]byte) ([]imaging.Image, error)
}

type Compositor interface {
	Compose(images []imaging.Image) (imaging.Image, error)
}

type Extractor interface {
	Extract(ctx context.Context, req inference.Request) (json.RawMessage, error)
}

type PromptBuilder interface {
	Build(url, date string, hints extraction.Hints, page, totalPages int) (string, error)
}

// ArtifactStore keeps diagnostic images
type ArtifactStore interface {
	SaveImage(name string, data []byte) (string, error)
}

// Config holds pipeline limits
type Config struct {
	MaxPages        int
	DefaultStrategy Strategy
}

// Deps are the pipeline's collaborators
type Deps struct {
	Rasterizer Rasterizer
	Normalizer Normalizer
	Compositor Compositor
	Extractor  Extractor
	Prompts    PromptBuilder
	Validator  *extraction.Validator
	Artifacts  ArtifactStore // optional
	Logger     *slog.Logger
}

// Pipeline runs rasterize → normalize → (composite | per page) → extract → reconcile
type Pipeline struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// Input is one job's work
type Input struct {
	JobID    string
	Payload  *domain.DocumentPayload
	Strategy Strategy
}

// Output is the reconciled record plus run statistics
type Output struct {
	Record   *extraction.Record
	Artifact string
	Pages    int
	Calls    int
}

// New creates a pipeline
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = StrategySingle
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, deps: deps, now: time.Now}
}

// Run processes one payload. Every error it returns is a *domain.JobError.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Output, error) {
	logger := p.deps.Logger.With(slog.String("job_id", in.JobID))

	if err := in.Payload.Validate(); err != nil {
		return nil, domain.NewJobError(domain.KindInputMissing, "no usable document supplied", err)
	}

	strategy := in.Strategy
	if strategy == "" {
		strategy = p.cfg.DefaultStrategy
	}

	raws, err := p.pages(ctx, in.Payload, logger)
	if err != nil {
		return nil, err
	}

	images, err := p.deps.Normalizer.NormalizeAll(ctx, raws)
	if err != nil {
		return nil, domain.NewJobError(domain.KindInternal, "image normalization aborted", err)
	}

	date := p.now().Format("2006-01-02")
	out := &Output{Pages: len(images)}

	var responses []json.RawMessage
	switch strategy {
	case StrategySequential:
		responses, err = p.runSequential(ctx, in, images, date, out, logger)
	default:
		responses, err = p.runSingle(ctx, in, images, date, out, logger)
	}
	if err != nil {
		return nil, err
	}

	partials := p.deps.Validator.DecodeAll(expand(responses))
	if !anyPartial(partials) {
		je := domain.NewJobError(domain.KindInferenceFailed, "no page produced a usable extraction", extraction.ErrMalformedPartial)
		je.Artifact = out.Artifact
		return nil, je
	}

	record := extraction.Reconcile(partials)
	extraction.ApplyHints(record, in.Payload.Hints)
	extraction.ApplyMeta(record, in.Payload.URL, date)
	if record.Meta.IndustryDomain == nil {
		industry := classify.Industry(record.CompanyName(), record.Title())
		record.Meta.IndustryDomain = &industry
	}
	out.Record = record

	logger.Info("Pipeline finished",
		slog.String("strategy", string(strategy)),
		slog.Int("pages", out.Pages),
		slog.Int("calls", out.Calls),
		slog.String("industry", *record.Meta.IndustryDomain),
	)
	return out, nil
}

// pages returns the raw page images in order, capped at MaxPages
func (p *Pipeline) pages(ctx context.Context, payload *domain.DocumentPayload, logger *slog.Logger) ([][]byte, error) {
	if payload.Kind() == domain.InputPDF {
		raws, err := p.deps.Rasterizer.Rasterize(ctx, payload.PDF)
		if err != nil {
			if errors.Is(err, rasterize.ErrConversionFailed) {
				return nil, domain.NewJobError(domain.KindConversionFailed, "document could not be rasterized", err)
			}
			return nil, domain.NewJobError(domain.KindInternal, "document rasterization aborted", err)
		}
		if len(raws) > p.cfg.MaxPages {
			raws = raws[:p.cfg.MaxPages]
		}
		return raws, nil
	}

	raws := make([][]byte, 0, len(payload.Images))
	for _, img := range payload.Images {
		if len(img) > 0 {
			raws = append(raws, img)
		}
	}
	if len(raws) > p.cfg.MaxPages {
		logger.Info("Dropping pages beyond the cap",
			slog.Int("received", len(raws)),
			slog.Int("max_pages", p.cfg.MaxPages),
		)
		raws = raws[:p.cfg.MaxPages]
	}
	return raws, nil
}

func (p *Pipeline) runSingle(ctx context.Context, in Input, images []imaging.Image, date string, out *Output, logger *slog.Logger) ([]json.RawMessage, error) {
	merged, err := p.deps.Compositor.Compose(images)
	if err != nil {
		return nil, domain.NewJobError(domain.KindMergeFailed, "pages could not be merged", err)
	}
	out.Artifact = p.saveArtifact(in.JobID, merged.Data, logger)

	prompt, err := p.deps.Prompts.Build(in.Payload.URL, date, in.Payload.Hints, 0, len(images))
	if err != nil {
		return nil, domain.NewJobError(domain.KindInternal, "prompt could not be rendered", err)
	}

	out.Calls++
	raw, err := p.deps.Extractor.Extract(ctx, inference.Request{Image: merged.Data, Prompt: prompt})
	if err != nil {
		je := domain.NewJobError(domain.KindInferenceFailed, inferenceMessage(err), err)
		je.Artifact = out.Artifact
		return nil, je
	}
	return []json.RawMessage{raw}, nil
}

// runSequential calls the backend once per page in order; a failed page leaves a nil entry
func (p *Pipeline) runSequential(ctx context.Context, in Input, images []imaging.Image, date string, out *Output, logger *slog.Logger) ([]json.RawMessage, error) {
	if len(images) == 0 {
		return nil, domain.NewJobError(domain.KindMergeFailed, "no pages to analyze", imaging.ErrMergeFailed)
	}
	out.Artifact = p.saveArtifact(in.JobID, images[0].Data, logger)

	responses := make([]json.RawMessage, len(images))
	var lastErr error
	for i, img := range images {
		prompt, err := p.deps.Prompts.Build(in.Payload.URL, date, in.Payload.Hints, i+1, len(images))
		if err != nil {
			return nil, domain.NewJobError(domain.KindInternal, "prompt could not be rendered", err)
		}

		out.Calls++
		raw, err := p.deps.Extractor.Extract(ctx, inference.Request{Image: img.Data, Prompt: prompt})
		if err != nil {
			logger.Warn("Page analysis failed, continuing with remaining pages",
				slog.Int("page", i+1),
				slog.Any("error", err),
			)
			lastErr = err
			continue
		}
		responses[i] = raw
	}

	if lastErr != nil && !anyResponse(responses) {
		je := domain.NewJobError(domain.KindInferenceFailed, inferenceMessage(lastErr), lastErr)
		je.Artifact = out.Artifact
		return nil, je
	}
	return responses, nil
}

func (p *Pipeline) saveArtifact(jobID string, data []byte, logger *slog.Logger) string {
	if p.deps.Artifacts == nil || len(data) == 0 {
		return ""
	}
	name, err := p.deps.Artifacts.SaveImage(jobID, data)
	if err != nil {
		logger.Warn("Failed to save diagnostic image", slog.Any("error", err))
		return ""
	}
	return name
}

func inferenceMessage(err error) string {
	var ie *inference.Error
	if errors.As(err, &ie) {
		return fmt.Sprintf("inference failed (%s) after %d attempt(s)", ie.Class, ie.Attempts)
	}
	return "inference failed"
}

// expand splits a top-level JSON array into its elements so each is decoded
// as its own partial
func expand(responses []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(responses))
	for _, raw := range responses {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			out = append(out, raw)
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			out = append(out, raw)
			continue
		}
		out = append(out, items...)
	}
	return out
}

func anyPartial(partials []*extraction.Partial) bool {
	for _, p := range partials {
		if p != nil {
			return true
		}
	}
	return false
}

func anyResponse(responses []json.RawMessage) bool {
	for _, r := range responses {
		if r != nil {
			return true
		}
	}
	return false
}
