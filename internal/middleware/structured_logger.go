package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sensitiveQueryParams are query parameters that should be redacted from logs
var sensitiveQueryParams = []string{"token", "api_key", "apikey", "key", "secret"}

// StructuredLoggerConfig holds configuration for structured logging
type StructuredLoggerConfig struct {
	// SkipPaths are paths that should not be logged (e.g., health checks)
	SkipPaths []string
	// SkipSuccessfulRequests skips logging successful requests (2xx status codes)
	SkipSuccessfulRequests bool
	// Logger is the zerolog logger to use (defaults to global log)
	Logger *zerolog.Logger
	// SlowRequestThreshold logs slow requests with WARN level (0 = disabled)
	SlowRequestThreshold time.Duration
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths: []string{
			"/ping",
			"/metrics",
		},
		SkipSuccessfulRequests: false,
		Logger:                 nil, // Use global log
		SlowRequestThreshold:   30 * time.Second,
	}
}

// redactQueryString redacts sensitive query parameters from a query string
func redactQueryString(queryString string) string {
	if queryString == "" {
		return ""
	}

	values, err := url.ParseQuery(queryString)
	if err != nil {
		return "[redacted]"
	}

	for key := range values {
		for _, param := range sensitiveQueryParams {
			if strings.EqualFold(key, param) {
				values.Set(key, "[redacted]")
			}
		}
	}

	return values.Encode()
}

// StructuredLogger returns a middleware that logs requests with structured logging.
// Request bodies carry whole images and are never logged, only their size.
func StructuredLogger(config ...StructuredLoggerConfig) fiber.Handler {
	cfg := DefaultStructuredLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		start := time.Now()

		// Set by the requestid middleware
		requestID := c.Locals("requestid")
		if requestID == nil {
			requestID = c.Get("X-Request-ID", "")
		}
		requestBytes := len(c.Body())

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		if cfg.SkipSuccessfulRequests && err == nil && status >= 200 && status < 300 {
			return err
		}

		var logEvent *zerolog.Event
		switch {
		case err != nil:
			logEvent = logger.Error().Err(err)
		case status >= 500:
			logEvent = logger.Error()
		case status >= 400:
			logEvent = logger.Warn()
		case cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold:
			logEvent = logger.Warn().Bool("slow_request", true)
		default:
			logEvent = logger.Info()
		}

		logEvent = logEvent.
			Str("request_id", toString(requestID)).
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("request_bytes", requestBytes).
			Int("response_bytes", len(c.Response().Body())).
			Str("user_agent", c.Get("User-Agent"))

		if queryString := string(c.Request().URI().QueryString()); queryString != "" {
			logEvent = logEvent.Str("query", redactQueryString(queryString))
		}

		logEvent.Msg("HTTP request")

		return err
	}
}

// toString safely converts interface{} to string
func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
