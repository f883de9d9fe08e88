// Package prompt renders the extraction prompt sent with each page image.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/cuongbtq/job-collector/internal/extraction"
)

// Data feeds the template
type Data struct {
	URL          string
	Date         string // YYYY-MM-DD
	MetadataHint string
	Page         int // 1-based; 0 for a whole-document composite
	TotalPages   int
}

// Builder renders prompts from a parsed template
type Builder struct {
	tmpl *template.Template
}

// New parses the built-in template, or the file at path when path is set
func New(path string) (*Builder, error) {
	text := defaultTemplate
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template: %w", err)
		}
		text = string(b)
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// Build renders the prompt for one inference call
func (b *Builder) Build(url, date string, hints extraction.Hints, page, totalPages int) (string, error) {
	data := Data{
		URL:          url,
		Date:         date,
		MetadataHint: MetadataHint(hints),
		Page:         page,
		TotalPages:   totalPages,
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// MetadataHint lists the hints one per line, or "No metadata"
func MetadataHint(hints extraction.Hints) string {
	if hints.IsEmpty() {
		return "No metadata"
	}
	return strings.Join(hints.Lines(), "\n")
}
