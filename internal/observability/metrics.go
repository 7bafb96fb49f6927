package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for ocrserve.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestSize      *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// OCR metrics
	ocrRequestsTotal    *prometheus.CounterVec
	ocrImagesTotal      *prometheus.CounterVec
	ocrTextLinesTotal   prometheus.Counter
	ocrDecodeDuration   prometheus.Histogram
	ocrInferDuration    prometheus.Histogram
	ocrBatchSize        prometheus.Histogram
	ocrEngineReady      prometheus.Gauge
	ocrEngineLoadTime   prometheus.Gauge
	ocrPrewarmTotal     *prometheus.CounterVec
	serverlessJobsTotal *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates all Prometheus metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	durationBuckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	m := &Metrics{
		registry: reg,

		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrserve_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocrserve_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: durationBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocrserve_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrserve_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// OCR metrics
		ocrRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrserve_ocr_requests_total",
				Help: "Total number of OCR batches by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		ocrImagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrserve_ocr_images_total",
				Help: "Total number of images processed by outcome",
			},
			[]string{"outcome"},
		),
		ocrTextLinesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ocrserve_ocr_text_lines_total",
				Help: "Total number of text lines recognized",
			},
		),
		ocrDecodeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocrserve_ocr_decode_duration_seconds",
				Help:    "Image decode latency in seconds",
				Buckets: durationBuckets,
			},
		),
		ocrInferDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocrserve_ocr_inference_duration_seconds",
				Help:    "Engine inference latency per image in seconds",
				Buckets: durationBuckets,
			},
		),
		ocrBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ocrserve_ocr_batch_images",
				Help:    "Number of images per OCR batch",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		ocrEngineReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrserve_ocr_engine_ready",
				Help: "Whether the OCR engine was constructed successfully (1) or not (0)",
			},
		),
		ocrEngineLoadTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrserve_ocr_engine_load_seconds",
				Help: "Time taken to construct the OCR engine",
			},
		),
		ocrPrewarmTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrserve_ocr_prewarm_total",
				Help: "Total number of synthetic prewarm inferences by result",
			},
			[]string{"result"},
		),
		serverlessJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocrserve_serverless_jobs_total",
				Help: "Total number of queue jobs handled by result",
			},
			[]string{"result"},
		),

		// System metrics
		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ocrserve_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		requestSize := len(c.Body())
		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		m.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))

		return err
	}
}

// RecordRequest records the outcome of one OCR batch
func (m *Metrics) RecordRequest(transport, outcome string, images int) {
	if m == nil {
		return
	}
	m.ocrRequestsTotal.WithLabelValues(transport, outcome).Inc()
	m.ocrBatchSize.Observe(float64(images))
}

// RecordDecode records image decode latency
func (m *Metrics) RecordDecode(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ocrDecodeDuration.Observe(duration.Seconds())
	if err != nil {
		m.ocrImagesTotal.WithLabelValues("decode_error").Inc()
	}
}

// RecordInference records engine latency and the number of lines found for one image
func (m *Metrics) RecordInference(duration time.Duration, lines int, err error) {
	if m == nil {
		return
	}
	m.ocrInferDuration.Observe(duration.Seconds())
	if err != nil {
		m.ocrImagesTotal.WithLabelValues("inference_error").Inc()
		return
	}
	m.ocrImagesTotal.WithLabelValues("success").Inc()
	m.ocrTextLinesTotal.Add(float64(lines))
}

// SetEngineState records whether the engine is usable and how long it took to load
func (m *Metrics) SetEngineState(ready bool, loadTime time.Duration) {
	if m == nil {
		return
	}
	if ready {
		m.ocrEngineReady.Set(1)
	} else {
		m.ocrEngineReady.Set(0)
	}
	m.ocrEngineLoadTime.Set(loadTime.Seconds())
}

// RecordPrewarm records a synthetic inference run
func (m *Metrics) RecordPrewarm(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ocrPrewarmTotal.WithLabelValues(result).Inc()
}

// RecordJob records a queue job result
func (m *Metrics) RecordJob(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.serverlessJobsTotal.WithLabelValues(result).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// normalizePath caps path label cardinality
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
