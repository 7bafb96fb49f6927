package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedApp(cfg StructuredLoggerConfig) (*fiber.App, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	cfg.Logger = &logger

	app := fiber.New()
	app.Use(StructuredLogger(cfg))
	return app, &buf
}

// lastEntry decodes the last JSON log line written to buf
func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines[len(lines)-1], "no log output")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

// =============================================================================
// DefaultStructuredLoggerConfig Tests
// =============================================================================

func TestDefaultStructuredLoggerConfig(t *testing.T) {
	cfg := DefaultStructuredLoggerConfig()

	assert.ElementsMatch(t, []string{"/ping", "/metrics"}, cfg.SkipPaths)
	assert.False(t, cfg.SkipSuccessfulRequests)
	assert.Nil(t, cfg.Logger)
	assert.Equal(t, 30*time.Second, cfg.SlowRequestThreshold)
}

// =============================================================================
// redactQueryString Tests
// =============================================================================

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    []string
		notExpected []string
	}{
		{name: "empty string", input: ""},
		{
			name:     "no sensitive params",
			input:    "verbose=1",
			expected: []string{"verbose=1"},
		},
		{
			name:        "redacts api_key",
			input:       "api_key=sk_live_12345&verbose=1",
			expected:    []string{"api_key=%5Bredacted%5D", "verbose=1"},
			notExpected: []string{"sk_live_12345"},
		},
		{
			name:        "case insensitive",
			input:       "TOKEN=uppercase_secret",
			expected:    []string{"%5Bredacted%5D"},
			notExpected: []string{"uppercase_secret"},
		},
		{
			name:     "unparseable query",
			input:    "%zz",
			expected: []string{"[redacted]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactQueryString(tt.input)
			for _, s := range tt.expected {
				assert.Contains(t, result, s)
			}
			for _, s := range tt.notExpected {
				assert.NotContains(t, result, s)
			}
		})
	}
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", toString(nil))
	assert.Equal(t, "abc", toString("abc"))
	assert.Equal(t, "", toString(42))
}

// =============================================================================
// StructuredLogger Middleware Tests
// =============================================================================

func TestStructuredLogger_SkipPaths(t *testing.T) {
	app, buf := newLoggedApp(DefaultStructuredLoggerConfig())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, buf.String())
}

func TestStructuredLogger_Fields(t *testing.T) {
	app, buf := newLoggedApp(StructuredLoggerConfig{})
	app.Post("/", func(c *fiber.Ctx) error {
		return c.Status(200).SendString("done")
	})

	body := `{"images":"aGVsbG8="}`
	req := httptest.NewRequest("POST", "/?api_key=hidden", strings.NewReader(body))
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	entry := lastEntry(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(len(body)), entry["request_bytes"])
	assert.Equal(t, float64(4), entry["response_bytes"])
	assert.NotContains(t, buf.String(), "aGVsbG8=")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestStructuredLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"2xx success", 200, "info"},
		{"4xx client error", 400, "warn"},
		{"5xx server error", 500, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, buf := newLoggedApp(StructuredLoggerConfig{})
			app.Get("/status", func(c *fiber.Ctx) error {
				return c.SendStatus(tt.status)
			})

			_, err := app.Test(httptest.NewRequest("GET", "/status", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.level, lastEntry(t, buf)["level"])
		})
	}
}

func TestStructuredLogger_SlowRequest(t *testing.T) {
	app, buf := newLoggedApp(StructuredLoggerConfig{SlowRequestThreshold: time.Millisecond})
	app.Get("/slow", func(c *fiber.Ctx) error {
		time.Sleep(5 * time.Millisecond)
		return c.SendString("OK")
	})

	_, err := app.Test(httptest.NewRequest("GET", "/slow", nil))
	require.NoError(t, err)

	entry := lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, true, entry["slow_request"])
}

func TestStructuredLogger_SkipSuccessfulRequests(t *testing.T) {
	app, buf := newLoggedApp(StructuredLoggerConfig{SkipSuccessfulRequests: true})
	app.Get("/success", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return c.Status(500).SendString("Error")
	})

	_, err := app.Test(httptest.NewRequest("GET", "/success", nil))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = app.Test(httptest.NewRequest("GET", "/error", nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/error")
}

func TestStructuredLogger_HandlerError(t *testing.T) {
	app, buf := newLoggedApp(StructuredLoggerConfig{})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return errors.New("handler exploded")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "handler exploded", entry["error"])
}
