// Package resultstore persists canonical records and diagnostic images on disk.
package resultstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cuongbtq/job-collector/internal/extraction"
)

// FallbackName is used when nothing usable survives sanitization
const FallbackName = "unknown_job"

// maxSuffix bounds the collision search
const maxSuffix = 10000

// Config locates the output directories
type Config struct {
	JSONDir       string
	ImageDir      string
	MaxNameLength int
}

// Store writes one JSON document per completed job
type Store struct {
	cfg    Config
	logger *slog.Logger
}

// New creates the output directories when missing
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{cfg.JSONDir, cfg.ImageDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Store{cfg: cfg, logger: logger}, nil
}

// SanitizeFilename keeps letters, digits, spaces, hyphens and underscores,
// collapses whitespace runs and caps the length in runes
func SanitizeFilename(name string, maxLength int) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	safe := strings.Join(strings.Fields(b.String()), " ")
	if runes := []rune(safe); maxLength > 0 && len(runes) > maxLength {
		safe = strings.TrimSpace(string(runes[:maxLength]))
	}
	if safe == "" {
		return FallbackName
	}
	return safe
}

// BaseName derives the file stem from company and title
func (s *Store) BaseName(r *extraction.Record) string {
	return SanitizeFilename(strings.TrimSpace(r.CompanyName()+" "+r.Title()), s.cfg.MaxNameLength)
}

// Save writes r as <base>.json, or <base>_N.json for the first free N, and
// returns the file name. Files are created exclusively so concurrent saves
// never overwrite each other.
func (s *Store) Save(r *extraction.Record) (string, error) {
	base := s.BaseName(r)

	data, err := marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	for n := 0; n < maxSuffix; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}

		f, err := os.OpenFile(filepath.Join(s.cfg.JSONDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", name, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close %s: %w", name, err)
		}

		s.logger.Info("Record saved",
			slog.String("file", name),
			slog.Int("bytes", len(data)),
		)
		return name, nil
	}
	return "", fmt.Errorf("no free file name for %q", base)
}

// SaveImage writes a diagnostic image as <name>.jpg and returns the file name
func (s *Store) SaveImage(name string, data []byte) (string, error) {
	if s.cfg.ImageDir == "" {
		return "", nil
	}
	file := SanitizeFilename(name, s.cfg.MaxNameLength) + ".jpg"
	if err := os.WriteFile(filepath.Join(s.cfg.ImageDir, file), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", file, err)
	}
	return file, nil
}

func marshal(r *extraction.Record) ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
