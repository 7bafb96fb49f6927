package inference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/raster"
	"github.com/wayli-app/ocrserve/internal/testutil"
)

// helloEngine finds "HELLO" on black images and nothing on anything else
func helloEngine() *testutil.MockEngine {
	engine := testutil.NewMockEngine()
	engine.OnRecognize = func(ctx context.Context, call int, img *raster.Raster) (*ocr.Detections, error) {
		if testutil.IsBlack(img) {
			return testutil.SingleLine("HELLO", 0.98, 10, 20, 110, 45), nil
		}
		return nil, nil
	}
	return engine
}

func newTestService(engine *testutil.MockEngine) *Service {
	return NewService(engine.Holder(), observability.NewMetrics(), TransportHTTP)
}

// =============================================================================
// Input errors
// =============================================================================

func TestProcess_NoImages(t *testing.T) {
	engine := helloEngine()
	svc := newTestService(engine)

	for _, images := range [][]string{nil, {}} {
		results, err := svc.Process(context.Background(), images)
		require.Error(t, err)
		assert.Nil(t, results)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindInput, e.Kind)
		assert.Equal(t, "No images provided", err.Error())
		assert.ErrorIs(t, err, ErrNoImages)
	}
	assert.Empty(t, engine.Calls())
}

func TestProcess_NoImagesDoesNotLoadEngine(t *testing.T) {
	loaded := false
	holder := ocr.NewHolder(func() (ocr.Engine, error) {
		loaded = true
		return testutil.NewMockEngine(), nil
	})
	svc := NewService(holder, nil, TransportServerless)

	_, err := svc.Process(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, loaded)
}

// =============================================================================
// Successful batches
// =============================================================================

func TestProcess_HelloScenario(t *testing.T) {
	svc := newTestService(helloEngine())

	images := []string{
		testutil.SolidPNG(32, 16, testutil.Black),
		testutil.SolidPNG(32, 16, testutil.White),
	}

	results, err := svc.Process(context.Background(), images)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, results[0].TotalLines)
	assert.Equal(t, "HELLO", results[0].TextLines[0].Text)
	assert.InDelta(t, 0.98, results[0].TextLines[0].Confidence, 1e-9)
	assert.Equal(t, ocr.BBox{X: 10, Y: 20, Width: 100, Height: 25}, results[0].TextLines[0].BBox)

	assert.Equal(t, 0, results[1].TotalLines)
	assert.NotNil(t, results[1].TextLines)
}

func TestProcess_IndexAndLineCount(t *testing.T) {
	engine := testutil.NewMockEngine()
	engine.OnRecognize = func(ctx context.Context, call int, img *raster.Raster) (*ocr.Detections, error) {
		d := &ocr.Detections{}
		for i := 0; i < call; i++ {
			d.Append([]ocr.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}, "line", 0.5)
		}
		return d, nil
	}
	svc := newTestService(engine)

	img := testutil.SolidPNG(8, 8, testutil.White)
	results, err := svc.Process(context.Background(), []string{img, img, img, img})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, i, r.ImageIndex)
		assert.Equal(t, len(r.TextLines), r.TotalLines)
		assert.Equal(t, i, r.TotalLines)
	}
}

func TestProcess_DataURLMatchesBareBase64(t *testing.T) {
	engine := helloEngine()
	svc := newTestService(engine)

	bare := testutil.SolidPNG(12, 7, testutil.Black)
	prefixed := "data:image/png;base64," + bare

	bareResults, err := svc.Process(context.Background(), []string{bare})
	require.NoError(t, err)
	prefixedResults, err := svc.Process(context.Background(), []string{prefixed})
	require.NoError(t, err)

	assert.Equal(t, bareResults, prefixedResults)

	calls := engine.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
	assert.Equal(t, [3]int{7, 12, 3}, calls[0].Shape())
}

// =============================================================================
// Per-image failures
// =============================================================================

func TestProcess_MalformedBase64AbortsBatch(t *testing.T) {
	engine := helloEngine()
	svc := newTestService(engine)

	good := testutil.SolidPNG(8, 8, testutil.Black)
	results, err := svc.Process(context.Background(), []string{good, good, "not*base64!", good})

	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, strings.HasPrefix(err.Error(), "Image 3 processing failed: "), err.Error())

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindDecode, e.Kind)
	assert.Equal(t, 2, e.Image)
	assert.ErrorIs(t, err, raster.ErrBase64)

	// images after the failure are never run
	assert.Len(t, engine.Calls(), 2)
}

func TestProcess_CorruptImage(t *testing.T) {
	svc := newTestService(helloEngine())

	_, err := svc.Process(context.Background(), []string{"aGVsbG8gd29ybGQ="})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Image 1 processing failed: "))
	assert.ErrorIs(t, err, raster.ErrFormat)
}

func TestProcess_InferenceError(t *testing.T) {
	engine := testutil.NewMockEngine()
	engine.OnRecognize = func(ctx context.Context, call int, img *raster.Raster) (*ocr.Detections, error) {
		if call == 1 {
			return nil, errors.New("tesseract exploded")
		}
		return nil, nil
	}
	svc := newTestService(engine)

	img := testutil.SolidPNG(8, 8, testutil.White)
	results, err := svc.Process(context.Background(), []string{img, img})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, "Image 2 processing failed: tesseract exploded", err.Error())

	resp := Failed(err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Traceback)
	assert.Nil(t, resp.Results)
}

// =============================================================================
// Internal failures
// =============================================================================

func TestProcess_EngineConstructionFailure(t *testing.T) {
	holder := ocr.NewHolder(func() (ocr.Engine, error) {
		return nil, ocr.ErrModelNotFound
	})
	svc := NewService(holder, nil, TransportServerless)

	_, err := svc.Process(context.Background(), []string{testutil.SolidPNG(4, 4, testutil.White)})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.ErrorIs(t, err, ocr.ErrModelNotFound)
	assert.Contains(t, e.Trace, "model file not found")

	resp := Failed(err)
	assert.Contains(t, resp.Error, "failed to load OCR engine")
	assert.NotEmpty(t, resp.Traceback)
}

func TestProcess_PanicBecomesInternalError(t *testing.T) {
	engine := testutil.NewMockEngine()
	engine.OnRecognize = func(ctx context.Context, call int, img *raster.Raster) (*ocr.Detections, error) {
		panic("index out of range")
	}
	svc := newTestService(engine)

	results, err := svc.Process(context.Background(), []string{testutil.SolidPNG(4, 4, testutil.White)})
	require.Error(t, err)
	assert.Nil(t, results)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Contains(t, e.Error(), "index out of range")
	assert.Contains(t, e.Trace, "goroutine")
}

func TestProcess_CancelledContext(t *testing.T) {
	svc := newTestService(helloEngine())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Process(ctx, []string{testutil.SolidPNG(4, 4, testutil.White)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindInternal, AsError(err).Kind)
}

// =============================================================================
// Tracing and outcomes
// =============================================================================

func TestProcess_EngineReadySpanEvent(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	engine := helloEngine()
	svc := newTestService(engine)

	_, err := svc.Process(context.Background(), []string{testutil.SolidPNG(8, 8, testutil.Black)})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ocr.image", spans[0].Name())
	assert.Equal(t, "ocr.batch", spans[1].Name())

	events := spans[1].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ocr.engine_ready", events[0].Name)
	require.Len(t, events[0].Attributes, 1)
	assert.Equal(t, engine.Name(), events[0].Attributes[0].Value.AsString())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "input_error", outcome(inputError(ErrNoImages)))
	assert.Equal(t, "image_error", outcome(&Error{Kind: KindDecode, Image: 0, Err: raster.ErrFormat}))
	assert.Equal(t, "image_error", outcome(&Error{Kind: KindInference, Image: 2, Err: errors.New("boom")}))
	assert.Equal(t, "internal_error", outcome(errors.New("disk on fire")))
}
