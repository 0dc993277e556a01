package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// DefaultMaxSectionChars bounds a DOCX section; DOCX has no page layout, so
// long documents are split into synthetic sections.
const DefaultMaxSectionChars = 3000

// SupportedExtensions lists the accepted file extensions, lower case.
var SupportedExtensions = []string{".pdf", ".docx", ".txt"}

// Loader extracts pages from PDF, DOCX and TXT content.
type Loader struct {
	maxSectionChars int
}

type Option func(*Loader)

// WithMaxSectionChars overrides the DOCX section size.
func WithMaxSectionChars(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSectionChars = n
		}
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{maxSectionChars: DefaultMaxSectionChars}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether name has a loadable extension.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Load dispatches on the extension of name. Pages are named after the base
// name of the file. A document with no text yields no pages and no error.
func (l *Loader) Load(ctx context.Context, name string, content []byte) ([]domain.DocumentPage, error) {
	docName := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(docName))
	log := logger.FromContext(ctx).With("document", docName)

	var (
		pages []domain.DocumentPage
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = loadPDF(ctx, docName, content)
	case ".docx":
		pages, err = loadDOCX(docName, content, l.maxSectionChars)
	case ".txt":
		pages, err = loadTXT(docName, content)
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", domain.ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions, ", "))
	}
	if err != nil {
		log.Error("failed to load document", "err", err)
		return nil, err
	}
	log.Info("document loaded", "pages", len(pages), "format", strings.TrimPrefix(ext, "."))
	return pages, nil
}

// LoadFile reads path from disk and loads it.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]domain.DocumentPage, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Base(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(ctx, path, content)
}
