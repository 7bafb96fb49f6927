// Package document turns an input file into the page images the load test posts.
package document

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/wayli-app/ocrserve/internal/raster"
)

// Page is one image to send, numbered from 1
type Page struct {
	Number int
	Image  image.Image
}

// imageExtensions are decoded directly
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".tif":  true,
	".bmp":  true,
	".webp": true,
}

// SupportedTypes lists accepted inputs for error messages
const SupportedTypes = "PDF, PNG, JPG, JPEG, TIFF, BMP, WEBP"

// Extractor loads pages from images and PDFs
type Extractor struct {
	// PDFToPPM is the pdftoppm binary; looked up on PATH when empty
	PDFToPPM string
	// DPI for rendered PDF pages
	DPI int
}

// NewExtractor creates an extractor rendering PDFs at 300 DPI
func NewExtractor() *Extractor {
	return &Extractor{DPI: 300}
}

// Extract returns the pages of path in order
func (e *Extractor) Extract(ctx context.Context, path string) ([]Page, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return e.extractPDF(ctx, path)
	case imageExtensions[ext]:
		img, err := loadImage(path)
		if err != nil {
			return nil, err
		}
		return []Page{{Number: 1, Image: img}}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s (supported: %s)", ext, SupportedTypes)
	}
}

// loadImage decodes an image file and flattens it to RGB
func loadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	r, err := raster.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return r.Image(), nil
}

// PageCount reads the number of pages in a PDF
func PageCount(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) ([]Page, error) {
	expected, err := PageCount(path)
	if err != nil {
		return nil, err
	}

	binary := e.PDFToPPM
	if binary == "" {
		binary, err = exec.LookPath("pdftoppm")
		if err != nil {
			return nil, fmt.Errorf("pdftoppm (poppler-utils) is required for PDF input but not found")
		}
	}

	tmpDir, err := os.MkdirTemp("", "ocrload-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// -png: output PNG format, -r: resolution in DPI
	outputPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, binary, "-png", "-r", fmt.Sprint(e.DPI), path, outputPrefix)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w, output: %s", err, string(output))
	}

	files, err := renderedPages(tmpDir)
	if err != nil {
		return nil, err
	}
	if len(files) != expected {
		return nil, fmt.Errorf("pdftoppm rendered %d pages, PDF has %d", len(files), expected)
	}

	pages := make([]Page, 0, len(files))
	for i, file := range files {
		img, err := loadImage(file)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, Page{Number: i + 1, Image: img})
	}
	return pages, nil
}

// renderedPages lists PNG files in dir in page order. pdftoppm zero-pads page numbers
// to a common width, so lexical order is page order.
func renderedPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read temp dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
