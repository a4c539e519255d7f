package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor pulls narration text out of a source document.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
	Supports(path string) bool
}

// pdftotextBin is overridable in tests.
var pdftotextBin = "pdftotext"

// Registry dispatches to the first extractor that supports a path.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns the default extractor set: plain text files and PDFs.
func NewRegistry() *Registry {
	return &Registry{extractors: []Extractor{PlainText{}, PDF{}}}
}

// Supports reports whether any registered extractor handles the path.
func (r *Registry) Supports(path string) bool {
	for _, e := range r.extractors {
		if e.Supports(path) {
			return true
		}
	}
	return false
}

// Extract runs the matching extractor for the path.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	for _, e := range r.extractors {
		if e.Supports(path) {
			return e.Extract(ctx, path)
		}
	}
	return "", fmt.Errorf("no extractor for %s", filepath.Ext(path))
}

// PlainText reads .txt and .md files as-is.
type PlainText struct{}

func (PlainText) Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func (PlainText) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	text := normalize(string(data))
	if text == "" {
		return "", fmt.Errorf("document %s contains no text", filepath.Base(path))
	}
	return text, nil
}

// PDF extracts text with the poppler pdftotext tool.
type PDF struct{}

func (PDF) Supports(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

func (PDF) Extract(ctx context.Context, path string) (string, error) {
	// -layout preserves reading order; "-" streams to stdout.
	cmd := exec.CommandContext(ctx, pdftotextBin, "-layout", "-nopgbrk", path, "-")
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}
	text := normalize(string(out))
	if text == "" {
		return "", fmt.Errorf("document %s contains no text", filepath.Base(path))
	}
	return text, nil
}

// normalize collapses all whitespace runs to single spaces so the extracted
// text matches its own tokenization when joined back together.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
