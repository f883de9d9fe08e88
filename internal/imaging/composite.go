package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"log/slog"

	"golang.org/x/image/draw"
)

// ErrMergeFailed is returned when there is nothing to composite
var ErrMergeFailed = errors.New("image merge failed")

// Compositor stacks normalized pages into one tall image
type Compositor struct {
	opts   Options
	logger *slog.Logger
}

// NewCompositor creates a compositor sharing the normalizer's options
func NewCompositor(opts Options, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{opts: withDefaults(opts), logger: logger}
}

// Compose stacks images top to bottom at a common width.
// One image passes through unchanged. If decoding or encoding fails the first
// image is returned instead.
func (c *Compositor) Compose(images []Image) (Image, error) {
	switch len(images) {
	case 0:
		return Image{}, ErrMergeFailed
	case 1:
		return images[0], nil
	}

	merged, err := c.stack(images)
	if err != nil {
		c.logger.Warn("Image composite failed, falling back to first page",
			slog.Int("pages", len(images)),
			slog.Any("error", err),
		)
		return images[0], nil
	}
	return merged, nil
}

func (c *Compositor) stack(images []Image) (Image, error) {
	decoded := make([]image.Image, len(images))
	maxWidth := 0
	for i, img := range images {
		src, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return Image{}, err
		}
		decoded[i] = src
		if w := src.Bounds().Dx(); w > maxWidth {
			maxWidth = w
		}
	}

	target := min(maxWidth, c.opts.MaxWidth)
	if target <= 0 {
		return Image{}, errors.New("images have zero width")
	}

	heights := make([]int, len(decoded))
	total := 0
	for i, src := range decoded {
		b := src.Bounds()
		heights[i] = scaledHeight(b.Dx(), b.Dy(), target)
		total += heights[i]
	}

	canvas := image.NewRGBA(image.Rect(0, 0, target, total))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := 0
	for i, src := range decoded {
		rect := image.Rect(0, y, target, y+heights[i])
		draw.CatmullRom.Scale(canvas, rect, src, src.Bounds(), draw.Over, nil)
		y += heights[i]
	}

	data, err := encodeJPEG(canvas, c.opts.Quality)
	if err != nil {
		return Image{}, err
	}

	c.logger.Debug("Pages composited",
		slog.Int("pages", len(images)),
		slog.Int("width", target),
		slog.Int("height", total),
	)
	return Image{Index: 0, Data: data, Width: target, Height: total}, nil
}
