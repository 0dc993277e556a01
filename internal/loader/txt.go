package loader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

func loadTXT(docName string, content []byte) ([]domain.DocumentPage, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrInvalidInput, docName)
	}
	text := strings.TrimSpace(strings.TrimPrefix(string(content), "\ufeff"))
	if text == "" {
		return nil, nil
	}
	return []domain.DocumentPage{{DocumentName: docName, PageNumber: 1, Text: text}}, nil
}
