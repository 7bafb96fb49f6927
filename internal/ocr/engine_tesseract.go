//go:build cgo && ocr

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/bmp"

	"github.com/wayli-app/ocrserve/internal/raster"
)

// TesseractEngine runs Tesseract through a fixed pool of clients.
// A client is never used by two calls at once.
type TesseractEngine struct {
	name    string
	models  ModelPaths
	pageSeg gosseract.PageSegMode
	pool    chan *gosseract.Client
	clients []*gosseract.Client
}

// NewTesseractEngine validates the model files and opens cfg.PoolSize clients
func NewTesseractEngine(cfg EngineConfig) (Engine, error) {
	if err := cfg.Models.Validate(); err != nil {
		return nil, err
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 1
	}

	pageSeg := gosseract.PSM_AUTO
	if cfg.Models.Classifier != "" {
		if filepath.Dir(cfg.Models.Classifier) == cfg.Models.TessdataDir() {
			pageSeg = gosseract.PSM_AUTO_OSD
		} else {
			log.Warn().
				Str("classifier", cfg.Models.Classifier).
				Str("tessdata", cfg.Models.TessdataDir()).
				Msg("Orientation model is outside the tessdata directory, orientation detection disabled")
		}
	}

	e := &TesseractEngine{
		name:    fmt.Sprintf("tesseract %s (%s)", gosseract.Version(), cfg.Models.Language()),
		models:  cfg.Models,
		pageSeg: pageSeg,
		pool:    make(chan *gosseract.Client, size),
	}

	for i := 0; i < size; i++ {
		client, err := e.newClient()
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to create tesseract client %d: %w", i, err)
		}
		e.clients = append(e.clients, client)
		e.pool <- client
	}

	log.Debug().
		Str("language", cfg.Models.Language()).
		Str("tessdata", cfg.Models.TessdataDir()).
		Str("detector", cfg.Models.Detector).
		Int("pool_size", size).
		Msg("Tesseract engine initialized")

	return e, nil
}

func (e *TesseractEngine) newClient() (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if err := client.SetTessdataPrefix(e.models.TessdataDir()); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetLanguage(e.models.Language()); err != nil {
		client.Close()
		return nil, err
	}
	if e.models.Detector != "" {
		if err := client.SetConfigFile(e.models.Detector); err != nil {
			client.Close()
			return nil, err
		}
	}
	if err := client.SetPageSegMode(e.pageSeg); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (e *TesseractEngine) Name() string {
	return e.name
}

func (e *TesseractEngine) Recognize(ctx context.Context, img *raster.Raster) (*Detections, error) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image for tesseract: %w", err)
	}

	var client *gosseract.Client
	select {
	case client = <-e.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { e.pool <- client }()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	d := &Detections{}
	for _, b := range boxes {
		r := b.Box
		polygon := []Point{
			{X: float64(r.Min.X), Y: float64(r.Min.Y)},
			{X: float64(r.Max.X), Y: float64(r.Min.Y)},
			{X: float64(r.Max.X), Y: float64(r.Max.Y)},
			{X: float64(r.Min.X), Y: float64(r.Max.Y)},
		}
		d.Append(polygon, strings.TrimSpace(b.Word), b.Confidence/100)
	}
	return d, nil
}

func (e *TesseractEngine) Close() error {
	var firstErr error
	for _, c := range e.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.clients = nil
	return firstErr
}
