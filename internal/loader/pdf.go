package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// loadPDF returns one page per PDF page that has text, numbered from 1.
// The pdf package panics on some malformed files, so panics become errors.
func loadPDF(ctx context.Context, docName string, content []byte) (pages []domain.DocumentPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: unreadable pdf: %v", domain.ErrInvalidInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create PDF reader: %v", domain.ErrInvalidInput, err)
	}

	log := logger.FromContext(ctx)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn("failed to extract text from page", "document", docName, "page", i, "err", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.DocumentPage{
			DocumentName: docName,
			PageNumber:   i,
			Text:         text,
		})
	}
	return pages, nil
}
