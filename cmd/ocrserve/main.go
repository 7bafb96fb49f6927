package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/api"
	"github.com/wayli-app/ocrserve/internal/config"
	"github.com/wayli-app/ocrserve/internal/logging"
	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/prewarm"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("ocrserve %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	logging.Setup(logging.FormatAuto, false)
	observability.Version = Version

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogFormat, cfg.Debug)

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting ocrserve")
	observability.LogHostInfo(cfg.OCR.OMPNumThreads, cfg.OCR.MKLNumThreads)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	holder := ocr.NewHolderFromConfig(cfg.OCR.EngineConfig())
	server := api.NewServer(cfg, holder, metrics, tracer)

	// The health listener answers while the engine is still loading
	healthErr := server.StartHealth()

	if err := holder.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load OCR engine")
	}
	metrics.SetEngineState(true, holder.LoadTime())
	log.Info().
		Str("engine", holder.Name()).
		Dur("load_time", holder.LoadTime()).
		Msg("OCR engine loaded")

	if cfg.OCR.PrewarmOnStart {
		_ = prewarm.Run(ctx, holder, metrics)
	}

	var keepWarm *prewarm.KeepWarm
	if cfg.OCR.KeepWarmSchedule != "" {
		keepWarm, err = prewarm.NewKeepWarm(cfg.OCR.KeepWarmSchedule, holder, metrics)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule keep-warm")
		}
		keepWarm.Start()
	}

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case <-ctx.Done():
	case err, ok := <-healthErr:
		if ok {
			log.Error().Err(err).Msg("Health listener failed")
		}
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if keepWarm != nil {
		keepWarm.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := holder.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to release OCR engine")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Server exited")
}
