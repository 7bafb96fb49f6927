//go:build !cgo || !ocr

package ocr

// NewTesseractEngine reports that Tesseract support was not compiled in.
// Build with CGO_ENABLED=1 and -tags ocr to enable it.
func NewTesseractEngine(cfg EngineConfig) (Engine, error) {
	return nil, ErrEngineUnavailable
}
