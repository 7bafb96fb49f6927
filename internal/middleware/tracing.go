package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	// Enabled controls whether tracing is active
	Enabled bool

	// SkipPaths are paths that should not be traced
	SkipPaths []string
}

// DefaultTracingConfig returns sensible defaults
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:   true,
		SkipPaths: []string{"/ping", "/metrics"},
	}
}

// TracingMiddleware returns a Fiber middleware that creates spans for HTTP requests.
// The span context is installed as the request's user context so handlers can pass
// c.UserContext() to downstream calls.
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("ocrserve-http")

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skipPaths[path] {
			return c.Next()
		}

		// Extract parent context from incoming request headers
		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		spanName := fmt.Sprintf("%s %s", c.Method(), path)

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPURL(c.OriginalURL()),
				semconv.HTTPScheme(c.Protocol()),
				semconv.NetHostName(c.Hostname()),
				attribute.String("http.user_agent", c.Get("User-Agent")),
				attribute.String("http.request_id", c.Get("X-Request-ID")),
				attribute.Int("http.request_size", len(c.Body())),
				attribute.String("net.peer.ip", c.IP()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		statusCode := c.Response().StatusCode()
		span.SetAttributes(
			semconv.HTTPStatusCode(statusCode),
			attribute.Int("http.response_size", len(c.Response().Body())),
		)

		if statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

// GetTraceID returns the trace ID of the request span
func GetTraceID(c *fiber.Ctx) string {
	sc := trace.SpanContextFromContext(c.UserContext())
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
