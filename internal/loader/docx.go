package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// loadDOCX extracts body paragraphs and table rows in document order, with
// header paragraphs first and footer paragraphs last. The text is cut into
// sections of at most maxChars on paragraph boundaries.
func loadDOCX(docName string, content []byte, maxChars int) ([]domain.DocumentPage, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a DOCX archive: %v", domain.ErrInvalidInput, docName, err)
	}

	var body []byte
	var headers, footers []*zip.File
	for _, f := range reader.File {
		switch {
		case f.Name == "word/document.xml":
			if body, err = readZipFile(f); err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidInput, f.Name, err)
			}
		case isPart(f.Name, "header"):
			headers = append(headers, f)
		case isPart(f.Name, "footer"):
			footers = append(footers, f)
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s has no word/document.xml", domain.ErrInvalidInput, docName)
	}

	var parts []string
	headerParts, err := partParagraphs(headers, "[Header] ")
	if err != nil {
		return nil, err
	}
	parts = append(parts, headerParts...)

	bodyParts, err := parseWordXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse document.xml: %v", domain.ErrInvalidInput, err)
	}
	parts = append(parts, bodyParts...)

	footerParts, err := partParagraphs(footers, "[Footer] ")
	if err != nil {
		return nil, err
	}
	parts = append(parts, footerParts...)

	if len(parts) == 0 {
		return nil, nil
	}
	sections := splitSections(parts, maxChars)
	pages := make([]domain.DocumentPage, len(sections))
	for i, s := range sections {
		pages[i] = domain.DocumentPage{
			DocumentName: docName,
			PageNumber:   i + 1,
			Text:         s,
			IsSection:    true,
		}
	}
	return pages, nil
}

func isPart(name, kind string) bool {
	dir, file := path.Split(name)
	return dir == "word/" && strings.HasPrefix(file, kind) && strings.HasSuffix(file, ".xml")
}

// partParagraphs reads header or footer parts in name order, dropping
// paragraphs repeated across parts (linked sections share text).
func partParagraphs(files []*zip.File, prefix string) ([]string, error) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidInput, f.Name, err)
		}
		paras, err := parseWordXML(data)
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, f.Name, err)
		}
		for _, p := range paras {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, prefix+p)
		}
	}
	return out, nil
}

// maxPartBytes caps the decompressed size of a single DOCX part.
var maxPartBytes int64 = 64 << 20

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxPartBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxPartBytes {
		return nil, fmt.Errorf("decompressed part exceeds %d bytes", maxPartBytes)
	}
	return data, nil
}

// parseWordXML streams WordprocessingML and returns non-empty paragraphs
// outside tables plus one " | "-joined line per table row. Content nested
// deeper than the outermost table is folded into its enclosing cell.
func parseWordXML(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		parts      []string
		para       strings.Builder
		paraDepth  int
		tableDepth int
		row        []string
		cell       []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell = nil
				}
			case "p":
				if paraDepth == 0 {
					para.Reset()
				}
				paraDepth++
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, err
				}
				para.WriteString(s)
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				paraDepth--
				if paraDepth > 0 {
					continue
				}
				text := strings.TrimSpace(para.String())
				if tableDepth > 0 {
					cell = append(cell, text)
				} else if text != "" {
					parts = append(parts, text)
				}
			case "tc":
				if tableDepth == 1 {
					if text := strings.TrimSpace(strings.Join(cell, "\n")); text != "" {
						row = append(row, text)
					}
				}
			case "tr":
				if tableDepth == 1 && len(row) > 0 {
					parts = append(parts, strings.Join(row, " | "))
				}
			case "tbl":
				tableDepth--
			}
		}
	}
	return parts, nil
}

// splitSections packs paragraphs into sections joined by blank lines. A new
// section starts when the next paragraph would push the running length
// (separators excluded) past maxChars; a single oversized paragraph still
// gets its own section.
func splitSections(paragraphs []string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSectionChars
	}
	var sections []string
	var current []string
	length := 0
	for _, p := range paragraphs {
		n := utf8.RuneCountInString(p)
		if length+n > maxChars && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n\n"))
			current = nil
			length = 0
		}
		current = append(current, p)
		length += n
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n\n"))
	}
	return sections
}
