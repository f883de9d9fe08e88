// Package imaging bounds, flattens and stacks page images before inference.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Options bounds the output of normalization and compositing
type Options struct {
	MaxWidth    int
	Quality     int
	Concurrency int
}

// Image is one encoded page with its position in the source document
type Image struct {
	Index  int
	Data   []byte
	Width  int
	Height int
}

// Normalizer rescales and re-encodes raw page images
type Normalizer struct {
	opts   Options
	logger *slog.Logger
}

// NewNormalizer creates a normalizer; zero options take the collector defaults
func NewNormalizer(opts Options, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: withDefaults(opts), logger: logger}
}

func withDefaults(opts Options) Options {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 800
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 75
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return opts
}

// Normalize flattens transparency onto white, scales down to MaxWidth and
// re-encodes as JPEG. Undecodable input is returned unchanged.
func (n *Normalizer) Normalize(index int, raw []byte) Image {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		n.logger.Warn("Image normalization skipped, keeping original bytes",
			slog.Int("index", index),
			slog.Int("bytes", len(raw)),
			slog.Any("error", err),
		)
		return Image{Index: index, Data: raw}
	}

	img := flatten(src)
	if img.Bounds().Dx() > n.opts.MaxWidth {
		img = scaleToWidth(img, n.opts.MaxWidth)
	}

	data, err := encodeJPEG(img, n.opts.Quality)
	if err != nil {
		n.logger.Warn("Image re-encode failed, keeping original bytes",
			slog.Int("index", index),
			slog.String("format", format),
			slog.Any("error", err),
		)
		b := src.Bounds()
		return Image{Index: index, Data: raw, Width: b.Dx(), Height: b.Dy()}
	}

	b := img.Bounds()
	n.logger.Debug("Image normalized",
		slog.Int("index", index),
		slog.String("format", format),
		slog.Int("width", b.Dx()),
		slog.Int("height", b.Dy()),
		slog.Int("bytes", len(data)),
	)
	return Image{Index: index, Data: data, Width: b.Dx(), Height: b.Dy()}
}

// NormalizeAll normalizes pages concurrently; the result keeps input order
func (n *Normalizer) NormalizeAll(ctx context.Context, raws [][]byte) ([]Image, error) {
	out := make([]Image, len(raws))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.Concurrency)
	for i, raw := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = n.Normalize(i, raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to normalize images: %w", err)
	}
	return out, nil
}

// flatten composites src onto opaque white when it may carry transparency
func flatten(src image.Image) image.Image {
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// scaleToWidth resizes src to width w keeping its aspect ratio
func scaleToWidth(src image.Image, w int) image.Image {
	b := src.Bounds()
	h := scaledHeight(b.Dx(), b.Dy(), w)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// scaledHeight is round(h*target/w), at least 1
func scaledHeight(w, h, target int) int {
	if w <= 0 {
		return 1
	}
	sh := (h*target + w/2) / w
	if sh < 1 {
		sh = 1
	}
	return sh
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
