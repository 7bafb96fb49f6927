package api

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/config"
	"github.com/wayli-app/ocrserve/internal/inference"
	"github.com/wayli-app/ocrserve/internal/middleware"
	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
)

const localsPanicStack = "panic_stack"

// Server is the HTTP transport: the OCR app on the main port and a
// liveness app on the health port.
type Server struct {
	app       *fiber.App
	healthApp *fiber.App
	config    *config.Config
	holder    *ocr.Holder
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	startTime time.Time

	ocrHandler    *OCRHandler
	healthHandler *HealthHandler
}

// NewServer creates both fiber apps and registers their routes.
// metrics and tracer may be nil.
func NewServer(cfg *config.Config, holder *ocr.Holder, metrics *observability.Metrics, tracer *observability.Tracer) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "ocrserve",
		AppName:               "ocrserve " + observability.Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	healthApp := fiber.New(fiber.Config{
		ServerHeader:          "ocrserve",
		AppName:               "ocrserve health",
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
	})

	service := inference.NewService(holder, metrics, inference.TransportHTTP)

	s := &Server{
		app:           app,
		healthApp:     healthApp,
		config:        cfg,
		holder:        holder,
		metrics:       metrics,
		tracer:        tracer,
		startTime:     time.Now(),
		ocrHandler:    NewOCRHandler(service),
		healthHandler: NewHealthHandler(holder),
	}

	metrics.SetEngineState(holder.Ready(), holder.LoadTime())

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares sets up global middlewares on the main app
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	s.app.Use(middleware.StructuredLogger(middleware.DefaultStructuredLoggerConfig()))

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			stack := debug.Stack()
			c.Locals(localsPanicStack, string(stack))
			log.Error().
				Interface("panic", e).
				Str("path", c.Path()).
				Str("stack", string(stack)).
				Msg("Recovered from panic in HTTP handler")
		},
	}))
}

// setupRoutes registers the OCR, ping and metrics routes
func (s *Server) setupRoutes() {
	s.app.Post("/", s.ocrHandler.HandleOCR)
	s.app.Get("/ping", s.healthHandler.HandlePing)

	s.healthApp.Get("/ping", s.healthHandler.HandleLiveness)
	if s.metrics != nil {
		s.healthApp.Get("/metrics", func(c *fiber.Ctx) error {
			s.metrics.UpdateUptime(s.startTime)
			s.metrics.SetEngineState(s.holder.Ready(), s.holder.LoadTime())
			return c.Next()
		}, s.metrics.Handler())
	}
}

// App returns the main fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// HealthApp returns the health-check fiber app
func (s *Server) HealthApp() *fiber.App {
	return s.healthApp
}

// Start starts the main listener and blocks
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address()).Msg("Starting OCR listener")
	return s.app.Listen(s.config.Server.Address())
}

// StartHealth starts the health listener in a background goroutine.
// A listener failure is reported on the returned channel.
func (s *Server) StartHealth() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.config.Server.HealthAddress()).Msg("Starting health listener")
		if err := s.healthApp.Listen(s.config.Server.HealthAddress()); err != nil {
			log.Error().Err(err).Msg("Health listener stopped")
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down both listeners
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP listeners")
	return errors.Join(
		s.app.ShutdownWithContext(ctx),
		s.healthApp.ShutdownWithContext(ctx),
	)
}

// customErrorHandler renders errors in the OCR response shape
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	resp := inference.Response{Success: false, Error: message}
	if stack, ok := c.Locals(localsPanicStack).(string); ok {
		resp.Traceback = stack
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(resp)
}
