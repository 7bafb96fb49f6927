// Package ocr adapts an external OCR engine to the text line records returned to clients.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/wayli-app/ocrserve/internal/raster"
)

// EngineType identifies an engine implementation
type EngineType string

const (
	EngineTypeTesseract EngineType = "tesseract"
)

var (
	// ErrModelNotFound is returned when a configured model weight file does not exist.
	ErrModelNotFound = errors.New("model file not found")
	// ErrEngineUnavailable is returned when the binary was built without engine support.
	ErrEngineUnavailable = errors.New("OCR engine not available: built without Tesseract support")
)

// Engine runs detection, orientation classification and recognition on one raster.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Name returns a human readable engine description
	Name() string

	// Recognize returns the detections for a single image. A nil result means no text.
	Recognize(ctx context.Context, img *raster.Raster) (*Detections, error)

	// Close releases engine resources
	Close() error
}

// ModelPaths are the weight files an engine instance is bound to.
type ModelPaths struct {
	// Detector holds layout analysis / text line segmentation settings
	Detector string `mapstructure:"detector"`
	// Recognizer is the <lang>.traineddata recognition model
	Recognizer string `mapstructure:"recognizer"`
	// Classifier is the orientation and script detection model
	Classifier string `mapstructure:"classifier"`
}

// DefaultModelPaths returns the locations baked into the container image
func DefaultModelPaths() ModelPaths {
	return ModelPaths{
		Detector:   "/app/models/textline.config",
		Recognizer: "/app/models/eng.traineddata",
		Classifier: "/app/models/osd.traineddata",
	}
}

// Validate checks that every configured file exists. Empty classifier disables orientation detection.
func (m ModelPaths) Validate() error {
	if m.Recognizer == "" {
		return fmt.Errorf("recognizer model path is required")
	}
	if !strings.HasSuffix(m.Recognizer, ".traineddata") {
		return fmt.Errorf("recognizer model must be a .traineddata file: %s", m.Recognizer)
	}
	for role, path := range map[string]string{
		"detector":   m.Detector,
		"recognizer": m.Recognizer,
		"classifier": m.Classifier,
	} {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s model %s", ErrModelNotFound, role, path)
		}
		if info.IsDir() {
			return fmt.Errorf("%s model %s is a directory", role, path)
		}
	}
	return nil
}

// Language derives the Tesseract language code from the recognizer file name.
func (m ModelPaths) Language() string {
	return strings.TrimSuffix(filepath.Base(m.Recognizer), ".traineddata")
}

// TessdataDir is the directory holding the recognizer model.
func (m ModelPaths) TessdataDir() string {
	return filepath.Dir(m.Recognizer)
}

// EngineConfig selects and configures an engine implementation
type EngineConfig struct {
	Type     EngineType `mapstructure:"type"`
	Models   ModelPaths `mapstructure:"models"`
	PoolSize int        `mapstructure:"pool_size"`
}

// NewEngine creates an engine based on configuration
func NewEngine(cfg EngineConfig) (Engine, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}

	switch cfg.Type {
	case EngineTypeTesseract, "":
		return NewTesseractEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown OCR engine type: %s", cfg.Type)
	}
}
