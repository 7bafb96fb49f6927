package loadtest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"
	"time"

	"github.com/wayli-app/ocrserve/cli/client"
	"github.com/wayli-app/ocrserve/cli/document"
)

// Runner sends pages sequentially
type Runner struct {
	Client *client.Client
	// Progress receives one line per page; nil discards
	Progress io.Writer
	// Inline overwrites the "sending" line with the page result on a terminal
	Inline bool
}

// Run posts each page and collects per-page results. A failed page never stops the run.
func (r *Runner) Run(ctx context.Context, pages []document.Page) []PageResult {
	results := make([]PageResult, 0, len(pages))
	for _, page := range pages {
		if ctx.Err() != nil {
			results = append(results, PageResult{Page: page.Number, Error: ctx.Err().Error()})
			continue
		}
		results = append(results, r.runPage(ctx, page))
	}
	return results
}

func (r *Runner) runPage(ctx context.Context, page document.Page) PageResult {
	convertStart := time.Now()
	encoded, err := encodePNG(page)
	convertTime := time.Since(convertStart).Seconds()
	if err != nil {
		r.progressf("  ✗ Page %d: %v\n", page.Number, err)
		return PageResult{Page: page.Number, Error: err.Error()}
	}

	sending := "\n"
	if r.Inline {
		sending = ""
	}
	r.progressf("  Page %d: Sending request... (conversion: %.2fs)"+sending, page.Number, convertTime)

	ocrStart := time.Now()
	res, err := r.Client.OCR(ctx, []string{encoded})
	ocrTime := time.Since(ocrStart).Seconds()
	if err != nil {
		r.progressf(r.lineStart()+"  ✗ Page %d: %v\n", page.Number, err)
		return PageResult{Page: page.Number, Error: err.Error()}
	}

	total := convertTime + ocrTime
	lines := res.TextLines()
	r.progressf(r.lineStart()+"  ✓ Page %d: %d lines (OCR: %.2fs, Total: %.2fs)\n", page.Number, lines, ocrTime, total)

	return PageResult{
		Page:        page.Number,
		Success:     true,
		TextLines:   lines,
		ConvertTime: convertTime,
		OCRTime:     ocrTime,
		TotalTime:   total,
		Result:      res.Raw,
	}
}

// lineStart clears the pending "sending" line in inline mode
func (r *Runner) lineStart() string {
	if r.Inline {
		return "\r\033[K"
	}
	return ""
}

func (r *Runner) progressf(format string, args ...any) {
	if r.Progress != nil {
		_, _ = fmt.Fprintf(r.Progress, format, args...)
	}
}

// encodePNG re-encodes a page as base64 PNG
func encodePNG(page document.Page) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return "", fmt.Errorf("failed to encode page %d: %w", page.Number, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
