package inference

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/raster"
)

// Transport names used for metrics and spans
const (
	TransportHTTP       = "http"
	TransportServerless = "serverless"
)

// Service decodes, recognizes and formats a batch of images.
// A batch stops at the first failing image and returns no partial results.
type Service struct {
	holder    *ocr.Holder
	metrics   *observability.Metrics
	transport string
}

// NewService creates a batch service. metrics may be nil.
func NewService(holder *ocr.Holder, metrics *observability.Metrics, transport string) *Service {
	return &Service{
		holder:    holder,
		metrics:   metrics,
		transport: transport,
	}
}

// Holder returns the engine holder the service runs on
func (s *Service) Holder() *ocr.Holder {
	return s.holder
}

// Process runs every image through the engine in order. Errors are always *Error.
func (s *Service) Process(ctx context.Context, images []string) (results []ocr.ImageResult, err error) {
	ctx, span := observability.StartBatchSpan(ctx, s.transport, len(images))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			observability.TraceFields(ctx, log.Error()).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("OCR batch panicked")
			results = nil
			err = panicError(r, stack)
		}

		s.metrics.RecordRequest(s.transport, outcome(err), len(images))
		observability.EndSpan(span, err)

		if err == nil {
			observability.TraceFields(ctx, log.Debug()).
				Str("transport", s.transport).
				Int("images", len(images)).
				Dur("duration", time.Since(start)).
				Msg("OCR batch completed")
		}
	}()

	if len(images) == 0 {
		return nil, inputError(ErrNoImages)
	}

	engine, loadErr := s.holder.Get()
	if loadErr != nil {
		return nil, internalError(fmt.Errorf("failed to load OCR engine: %w", loadErr))
	}
	observability.AddSpanEvent(ctx, "ocr.engine_ready", attribute.String("ocr.engine", engine.Name()))

	results = make([]ocr.ImageResult, 0, len(images))
	for i, encoded := range images {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, internalError(fmt.Errorf("request cancelled before image %d: %w", i+1, ctxErr))
		}

		result, imgErr := s.processImage(ctx, engine, i, encoded)
		if imgErr != nil {
			observability.TraceFields(ctx, log.Warn()).
				Err(imgErr.Err).
				Str("transport", s.transport).
				Int("image", i+1).
				Str("kind", imgErr.Kind.String()).
				Msg("Image processing failed")
			return nil, imgErr
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Service) processImage(ctx context.Context, engine ocr.Engine, index int, encoded string) (ocr.ImageResult, *Error) {
	ctx, span := observability.StartImageSpan(ctx, index)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	decodeStart := time.Now()
	img, err := raster.DecodeBase64(encoded)
	s.metrics.RecordDecode(time.Since(decodeStart), err)
	if err != nil {
		spanErr = err
		return ocr.ImageResult{}, imageError(KindDecode, index, err)
	}

	inferStart := time.Now()
	detections, err := engine.Recognize(ctx, img)
	if err != nil {
		s.metrics.RecordInference(time.Since(inferStart), 0, err)
		spanErr = err
		return ocr.ImageResult{}, imageError(KindInference, index, err)
	}

	result := ocr.NewImageResult(index, detections)
	s.metrics.RecordInference(time.Since(inferStart), result.TotalLines, nil)
	observability.SetSpanAttributes(ctx,
		attribute.Int("ocr.text_lines", result.TotalLines),
		attribute.String("ocr.image_shape", img.String()),
	)

	return result, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	e := AsError(err)
	switch {
	case e.Kind == KindInput:
		return "input_error"
	case e.IsImageError():
		return "image_error"
	default:
		return "internal_error"
	}
}
