// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/raster"
)

// MockEngine implements ocr.Engine for testing
type MockEngine struct {
	mu     sync.Mutex
	calls  []*raster.Raster
	closed bool

	// EngineName is returned by Name, "mock" when empty
	EngineName string

	// Callbacks for custom behavior
	OnRecognize func(ctx context.Context, call int, img *raster.Raster) (*ocr.Detections, error)
}

// NewMockEngine creates a mock engine that finds no text unless OnRecognize is set
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Name() string {
	if m.EngineName == "" {
		return "mock"
	}
	return m.EngineName
}

func (m *MockEngine) Recognize(ctx context.Context, img *raster.Raster) (*ocr.Detections, error) {
	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, img)
	m.mu.Unlock()

	if m.OnRecognize != nil {
		return m.OnRecognize(ctx, call, img)
	}
	return nil, nil
}

func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the rasters passed to Recognize, in call order
func (m *MockEngine) Calls() []*raster.Raster {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*raster.Raster, len(m.calls))
	copy(out, m.calls)
	return out
}

// Closed reports whether Close was called
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Holder wraps the mock in a constructed ocr.Holder
func (m *MockEngine) Holder() *ocr.Holder {
	return ocr.NewHolderWithEngine(m)
}

// SingleLine builds detections holding one text line
func SingleLine(text string, score float64, x0, y0, x1, y1 float64) *ocr.Detections {
	d := &ocr.Detections{}
	d.Append([]ocr.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}, text, score)
	return d
}

// SolidPNG returns a base64 encoded PNG filled with c
func SolidPNG(w, h int, c color.Color) string {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// White and Black are the colors the fixture images use
var (
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.NRGBA{A: 255}
)

// IsBlack reports whether the top-left pixel of img is black
func IsBlack(img *raster.Raster) bool {
	r, g, b := img.At(0, 0)
	return r == 0 && g == 0 && b == 0
}
