// Package rasterize renders PDF pages to PNG through pdftoppm.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrConversionFailed is returned when a document cannot be rendered
var ErrConversionFailed = errors.New("document conversion failed")

// Config controls rendering
type Config struct {
	Binary   string  // pdftoppm executable
	MaxPages int     // pages beyond this are not rendered
	Scale    float64 // 1.0 renders at 72 dpi
	TempDir  string  // parent for per-call scratch dirs; empty uses os.TempDir
}

// Rasterizer turns PDF bytes into ordered page images
type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// New creates a rasterizer; a nil runner executes the real binary
func New(cfg Config, runner Runner, logger *slog.Logger) *Rasterizer {
	if cfg.Binary == "" {
		cfg.Binary = "pdftoppm"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1.5
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger}
}

// Rasterize renders at most MaxPages pages in document order
func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte) ([][]byte, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(pdf, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: input is not a PDF", ErrConversionFailed)
	}

	tmpDir, err := os.MkdirTemp(r.cfg.TempDir, "collector-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("Failed to remove temp dir",
				slog.String("path", tmpDir),
				slog.Any("error", err),
			)
		}
	}()

	input := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	dpi := strconv.Itoa(int(72*r.cfg.Scale + 0.5))
	// pdftoppm -png -r <dpi> -f 1 -l <P> <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Binary, r.logger,
		"-png", "-r", dpi, "-f", "1", "-l", strconv.Itoa(r.cfg.MaxPages), input, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrConversionFailed, err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	pages, err := collectPages(prefix)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages rendered", ErrConversionFailed)
	}
	if len(pages) > r.cfg.MaxPages {
		pages = pages[:r.cfg.MaxPages]
	}

	out := make([][]byte, 0, len(pages))
	for _, p := range pages {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page: %w", err)
		}
		out = append(out, data)
	}

	r.logger.Info("Document rasterized",
		slog.Int("pages", len(out)),
		slog.String("dpi", dpi),
	)
	return out, nil
}

// collectPages returns prefix-N.png files ordered by N; pdftoppm zero-pads N
// depending on the page count, so lexical order is not enough
func collectPages(prefix string) ([]string, error) {
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	pageNum := func(path string) int {
		s := strings.TrimSuffix(strings.TrimPrefix(path, prefix+"-"), ".png")
		n, err := strconv.Atoi(s)
		if err != nil {
			return 1 << 30
		}
		return n
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return pageNum(matches[i]) < pageNum(matches[j])
	})
	return matches, nil
}
