package observability

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{499, "4xx"},
		{500, "5xx"},
		{599, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusClass(tc.status))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	t.Run("returns path unchanged for short paths", func(t *testing.T) {
		assert.Equal(t, "/ping", normalizePath("/ping"))
	})

	t.Run("returns long_path for paths over 50 chars", func(t *testing.T) {
		longPath := "/very/long/path/that/exceeds/fifty/characters/limit/here"
		assert.Equal(t, "long_path", normalizePath(longPath))
	})
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		a := NewMetrics()
		b := NewMetrics()
		assert.NotSame(t, a.Registry(), b.Registry())
	})
}

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics()

	t.Run("RecordRequest", func(t *testing.T) {
		m.RecordRequest("http", "success", 2)
		m.RecordRequest("http", "success", 1)
		m.RecordRequest("serverless", "input_error", 0)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.ocrRequestsTotal.WithLabelValues("http", "success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrRequestsTotal.WithLabelValues("serverless", "input_error")))
	})

	t.Run("RecordInference", func(t *testing.T) {
		m.RecordInference(10*time.Millisecond, 3, nil)
		m.RecordInference(10*time.Millisecond, 0, assert.AnError)

		assert.Equal(t, 3.0, testutil.ToFloat64(m.ocrTextLinesTotal))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrImagesTotal.WithLabelValues("success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrImagesTotal.WithLabelValues("inference_error")))
	})

	t.Run("RecordDecode", func(t *testing.T) {
		m.RecordDecode(time.Millisecond, nil)
		m.RecordDecode(time.Millisecond, assert.AnError)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrImagesTotal.WithLabelValues("decode_error")))
	})

	t.Run("SetEngineState", func(t *testing.T) {
		m.SetEngineState(true, 1500*time.Millisecond)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrEngineReady))
		assert.Equal(t, 1.5, testutil.ToFloat64(m.ocrEngineLoadTime))

		m.SetEngineState(false, 0)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.ocrEngineReady))
	})

	t.Run("RecordPrewarm", func(t *testing.T) {
		m.RecordPrewarm(nil)
		m.RecordPrewarm(assert.AnError)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrPrewarmTotal.WithLabelValues("success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ocrPrewarmTotal.WithLabelValues("error")))
	})

	t.Run("RecordJob", func(t *testing.T) {
		m.RecordJob(true)
		m.RecordJob(false)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.serverlessJobsTotal.WithLabelValues("failure")))
	})

	t.Run("UpdateUptime", func(t *testing.T) {
		m.UpdateUptime(time.Now().Add(-time.Hour))
		assert.GreaterOrEqual(t, testutil.ToFloat64(m.systemUptime), 3600.0)
	})
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("http", "success", 1)
		m.RecordDecode(time.Millisecond, nil)
		m.RecordInference(time.Millisecond, 1, nil)
		m.SetEngineState(true, time.Second)
		m.RecordPrewarm(nil)
		m.RecordJob(true)
		m.UpdateUptime(time.Now())
	})
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := NewMetrics()

	app := fiber.New()
	app.Use(m.MetricsMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	m.RecordRequest("http", "success", 1)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ocrserve_http_requests_total{method="GET",path="/ping",status="2xx"} 1`)
	assert.Contains(t, string(body), `ocrserve_ocr_requests_total{outcome="success",transport="http"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
