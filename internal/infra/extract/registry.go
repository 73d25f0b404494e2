package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry picks an extractor by file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry registers the built-in text and HTML extractors plus one
// command extractor per configured extension, e.g. ".pdf": "pdftotext -layout - -".
func NewRegistry(commands map[string]string) (*Registry, error) {
	r := &Registry{byExt: map[string]Extractor{}}
	for _, ext := range []string{".txt", ".md", ".markdown", ".text"} {
		r.Register(ext, PlainText{})
	}
	for _, ext := range []string{".html", ".htm", ".xhtml"} {
		r.Register(ext, HTML{})
	}
	for ext, line := range commands {
		cmd, err := ParseCommand(line)
		if err != nil {
			return nil, fmt.Errorf("extractor for %s: %w", ext, err)
		}
		r.Register(ext, cmd)
	}
	return r, nil
}

func (r *Registry) Register(ext string, e Extractor) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.byExt[ext] = e
}

// Extract implements the pipeline extractor port.
func (r *Registry) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", jobs.ErrUnsupportedFormat, ext)
	}
	return e.Extract(ctx, data)
}

// Supported lists the registered extensions.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}
