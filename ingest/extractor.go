package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyrag/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

var ErrNoExtractableText = errors.New("no extractable text")

// FetchError means the source URL could not be retrieved or did not
// return a usable PDF.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError means the PDF was retrieved but yielded no text.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type TextExtractor interface {
	Extract(ctx context.Context, sourceURL string) ([]types.Page, error)
}

// PDFExtractor downloads a PDF and pulls plain text out of each page's
// content streams.
type PDFExtractor struct {
	client *http.Client
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *PDFExtractor) Extract(ctx context.Context, sourceURL string) ([]types.Page, error) {
	raw, err := e.fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	pages, err := extractPages(raw)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}

	hasText := false
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, &ExtractionError{Err: ErrNoExtractableText}
	}

	return pages, nil
}

func (e *PDFExtractor) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: sourceURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: err}
	}
	return raw, nil
}

func extractPages(raw []byte) ([]types.Page, error) {
	rs := bytes.NewReader(raw)
	conf := api.LoadConfiguration()

	pdfCtx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	count := pdfCtx.PageCount

	pages := make([]types.Page, 0, count)
	for pageNr := 1; pageNr <= count; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			// A broken page does not fail the document.
			pages = append(pages, types.Page{Number: pageNr, Text: ""})
			continue
		}

		content, err := io.ReadAll(r)
		if err != nil {
			pages = append(pages, types.Page{Number: pageNr, Text: ""})
			continue
		}

		pages = append(pages, types.Page{
			Number: pageNr,
			Text:   decodeContentText(content),
		})
	}

	return pages, nil
}
