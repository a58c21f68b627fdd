package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	pkgerrors "github.com/digvijay2003/contract-intelligence-api/internal/pkg/errors"
)

// ExtractedText is the normalized text of a document plus the page
// layout needed to anchor spans. FullText is the pages joined with a
// single newline; PageStarts records where each page begins in it.
type ExtractedText struct {
	FullText   string
	PageStarts chunking.PageMap
	PageCount  int
}

// ExtractText sniffs the true file type from bytes, then extracts
// per-page text. Supported: PDF, plain text / markdown (form feed as
// page separator).
func ExtractText(originalName string, mimeType string, data []byte) (*ExtractedText, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file: name=%s mime=%s", pkgerrors.ErrEmptyInput, originalName, mimeType)
	}

	if isPDF(data) {
		return extractPDF(data)
	}

	// If it claims pdf but isn't actually pdf, return a helpful error.
	if mt == "application/pdf" || ext == ".pdf" {
		return nil, fmt.Errorf("%w: file claims pdf but missing %%PDF header: name=%s mime=%s", pkgerrors.ErrEmptyInput, originalName, mimeType)
	}

	if isProbablyText(data) || mt == "text/plain" || ext == ".txt" || ext == ".md" || ext == ".markdown" {
		return fromPages(strings.Split(string(data), "\f"))
	}

	return nil, fmt.Errorf("%w: unsupported file type: name=%s ext=%s mime=%s", pkgerrors.ErrEmptyInput, originalName, ext, mimeType)
}

func extractPDF(data []byte) (*ExtractedText, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf reader: %v", pkgerrors.ErrEmptyInput, err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A page that fails to render contributes no text but keeps
			// its slot so page numbers stay aligned.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return fromPages(pages)
}

// fromPages normalizes each page and concatenates them. Spans are
// anchored against exactly this text, so normalization happens here
// and nowhere else.
func fromPages(pages []string) (*ExtractedText, error) {
	normalized := make([]string, 0, len(pages))
	for _, p := range pages {
		normalized = append(normalized, collapseWhitespace(p))
	}
	// Trailing empty pages carry no text and no spans.
	for len(normalized) > 0 && normalized[len(normalized)-1] == "" {
		normalized = normalized[:len(normalized)-1]
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: document has no extractable text", pkgerrors.ErrEmptyInput)
	}

	starts := make(chunking.PageMap, 0, len(normalized))
	var sb strings.Builder
	for i, p := range normalized {
		if i > 0 {
			sb.WriteByte('\n')
		}
		starts = append(starts, sb.Len())
		sb.WriteString(p)
	}

	full := sb.String()
	if strings.TrimSpace(full) == "" {
		return nil, fmt.Errorf("%w: document has no extractable text", pkgerrors.ErrEmptyInput)
	}
	return &ExtractedText{
		FullText:   full,
		PageStarts: starts,
		PageCount:  len(normalized),
	}, nil
}

// ------------------------
// Sniff helpers
// ------------------------

func isPDF(b []byte) bool {
	// PDF starts with "%PDF-"
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isProbablyText(b []byte) bool {
	sample := b
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	if !utf8.Valid(sample) {
		return false
	}
	for _, c := range sample {
		if c == 0 {
			return false
		}
	}
	return true
}

var wsRun = regexp.MustCompile(`[ \t]+`)
var nlRun = regexp.MustCompile(`\n{3,}`)

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = wsRun.ReplaceAllString(s, " ")
	s = nlRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
