// Package extract turns source PDFs into plain text. The pipeline
// depends only on the Extractor interface; the PDF implementation is
// the production collaborator and StaticExtractor backs tests.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// Page is the extracted text of a single page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Stats summarizes an extraction run.
type Stats struct {
	TotalPages   int `json:"total_pages"`
	SkippedPages int `json:"skipped_pages"`
	TotalChars   int `json:"total_chars"`
}

// Result is the output of one extraction.
type Result struct {
	FullText string `json:"full_text"`
	Pages    []Page `json:"pages"`
	Stats    Stats  `json:"stats"`
}

// Extractor produces text from a located source file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// PDFExtractor extracts native text from PDFs page by page. Pages that
// fail to extract are skipped and counted; image-only PDFs come out
// empty and surface as an extraction error.
type PDFExtractor struct{}

// NewPDFExtractor returns the production extractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

var _ Extractor = (*PDFExtractor)(nil)

// Extract reads every page of the PDF at path.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, dircerrors.Extraction(
			fmt.Sprintf("failed to open PDF %s", path), err)
	}
	defer f.Close()

	result := &Result{Stats: Stats{TotalPages: reader.NumPage()}}
	var full strings.Builder

	for i := 1; i <= result.Stats.TotalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, dircerrors.FromContext(err)
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			result.Stats.SkippedPages++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			result.Stats.SkippedPages++
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			result.Stats.SkippedPages++
			continue
		}

		result.Pages = append(result.Pages, Page{Number: i, Text: text})
		if full.Len() > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(text)
	}

	result.FullText = full.String()
	result.Stats.TotalChars = len(result.FullText)
	if result.FullText == "" {
		return nil, dircerrors.New(dircerrors.ErrCodeEmptyDocument,
			fmt.Sprintf("no text could be extracted from %s", path), nil).
			WithSuggestion("image-only PDFs need OCR, which this pipeline does not perform")
	}
	return result, nil
}

// StaticExtractor returns canned text keyed by path. Unknown paths fail
// the way a corrupt PDF would.
type StaticExtractor struct {
	// Texts maps a path to the full text served for it.
	Texts map[string]string
}

var _ Extractor = (*StaticExtractor)(nil)

// Extract serves the canned text for path as a single page.
func (e *StaticExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, dircerrors.FromContext(err)
	}
	text, ok := e.Texts[path]
	if !ok {
		return nil, dircerrors.Extraction(
			fmt.Sprintf("no canned text for %s", path), nil)
	}
	return &Result{
		FullText: text,
		Pages:    []Page{{Number: 1, Text: text}},
		Stats:    Stats{TotalPages: 1, TotalChars: len(text)},
	}, nil
}
