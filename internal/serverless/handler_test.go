package serverless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wayli-app/ocrserve/internal/inference"
	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/raster"
	"github.com/wayli-app/ocrserve/internal/testutil"
)

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

func newTestHandler(holder *ocr.Holder) *Handler {
	metrics := observability.NewMetrics()
	return NewHandler(inference.NewService(holder, metrics, inference.TransportServerless), metrics)
}

func TestDecodeJob(t *testing.T) {
	t.Run("string image", func(t *testing.T) {
		job, err := DecodeJob([]byte(`{"id":"j1","input":{"images":"abc"}}`))
		require.NoError(t, err)
		assert.Equal(t, "j1", job.ID)
		assert.Equal(t, inference.ImageList{"abc"}, job.Input.Images)
	})

	t.Run("missing input", func(t *testing.T) {
		job, err := DecodeJob([]byte(`{"id":"j2"}`))
		require.NoError(t, err)
		assert.Equal(t, "j2", job.ID)
		assert.Empty(t, job.Input.Images)
	})

	t.Run("bad input keeps id", func(t *testing.T) {
		job, err := DecodeJob([]byte(`{"id":"j3","input":{"images":42}}`))
		require.Error(t, err)
		assert.Equal(t, "j3", job.ID)
		assert.Contains(t, err.Error(), "invalid job input")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeJob([]byte(`nope`))
		assert.Error(t, err)
	})
}

func TestHandle_Success(t *testing.T) {
	h := newTestHandler(helloEngine().Holder())

	job := Job{ID: "job-1", Input: JobInput{Images: inference.ImageList{testutil.SolidPNG(200, 60, testutil.Black)}}}
	resp := h.Handle(context.Background(), job)

	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].TotalLines)
	assert.Equal(t, "HELLO", resp.Results[0].TextLines[0].Text)
	assert.Empty(t, resp.Error)
}

func TestHandle_NoImages(t *testing.T) {
	engine := helloEngine()
	h := newTestHandler(engine.Holder())

	for _, data := range []string{
		`{"id":"job-2"}`,
		`{"id":"job-2","input":{}}`,
		`{"id":"job-2","input":{"images":[]}}`,
		`{"id":"job-2","input":{"images":""}}`,
	} {
		t.Run(data, func(t *testing.T) {
			job, err := DecodeJob([]byte(data))
			require.NoError(t, err)

			resp := h.Handle(context.Background(), job)
			assert.False(t, resp.Success)
			assert.Equal(t, "No images provided", resp.Error)
			assert.Empty(t, resp.Traceback)
		})
	}
	assert.Empty(t, engine.Calls())
}

func TestHandle_EngineLoadFailure(t *testing.T) {
	holder := ocr.NewHolder(func() (ocr.Engine, error) {
		return nil, errors.New("weights missing")
	})
	h := newTestHandler(holder)

	job := Job{ID: "job-3", Input: JobInput{Images: inference.ImageList{testutil.SolidPNG(10, 10, testutil.White)}}}
	resp := h.Handle(context.Background(), job)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "weights missing")
	assert.NotEmpty(t, resp.Traceback)
}

func TestHandle_RecordsErrorOnJobSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	holder := ocr.NewHolder(func() (ocr.Engine, error) {
		return nil, errors.New("weights missing")
	})
	h := newTestHandler(holder)

	ctx, span := observability.StartJobSpan(context.Background(), "job-4", "worker-1")
	job := Job{ID: "job-4", Input: JobInput{Images: inference.ImageList{testutil.SolidPNG(10, 10, testutil.White)}}}
	resp := h.Handle(ctx, job)
	span.End()
	require.False(t, resp.Success)

	var jobSpan sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "job.ocr" {
			jobSpan = s
		}
	}
	require.NotNil(t, jobSpan)
	assert.Equal(t, codes.Error, jobSpan.Status().Code)

	var exception bool
	for _, ev := range jobSpan.Events() {
		if ev.Name == "exception" {
			exception = true
		}
	}
	assert.True(t, exception, "job span should carry the error event")
}

func TestLoadTestInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_input.json")

	t.Run("nothing to run", func(t *testing.T) {
		_, found, err := LoadTestInput("", path)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"input":{"images":["a","b"]}}`), 0o600))

		job, found, err := LoadTestInput("", path)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Len(t, job.Input.Images, 2)
		assert.Contains(t, job.ID, "local-")
	})

	t.Run("inline wins over file", func(t *testing.T) {
		job, found, err := LoadTestInput(`{"id":"inline","input":{"images":"x"}}`, path)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "inline", job.ID)
		assert.Equal(t, inference.ImageList{"x"}, job.Input.Images)
	})

	t.Run("malformed", func(t *testing.T) {
		_, found, err := LoadTestInput(`{`, "")
		assert.True(t, found)
		assert.Error(t, err)
	})
}

func TestRunLocal(t *testing.T) {
	h := newTestHandler(helloEngine().Holder())
	job := Job{ID: "local", Input: JobInput{Images: inference.ImageList{testutil.SolidPNG(200, 60, testutil.Black)}}}

	var buf bytes.Buffer
	require.NoError(t, RunLocal(context.Background(), h, job, &buf))

	var resp inference.Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "HELLO", resp.Results[0].TextLines[0].Text)
}
