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
	"github.com/wayli-app/ocrserve/internal/inference"
	"github.com/wayli-app/ocrserve/internal/logging"
	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/prewarm"
	"github.com/wayli-app/ocrserve/internal/serverless"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	testInput   = flag.String("test_input", "", "Run a single job from inline JSON and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ocrworker %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	logging.Setup(logging.FormatAuto, false)
	observability.Version = Version

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogFormat, cfg.Debug)

	log.Info().Str("version", Version).Msg("Starting ocrworker")
	observability.LogHostInfo(cfg.OCR.OMPNumThreads, cfg.OCR.MKLNumThreads)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local test runs skip everything that talks to the queue
	job, local, err := serverless.LoadTestInput(*testInput, cfg.Serverless.TestInputFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read test input")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled && !local {
		metrics = observability.NewMetrics()
	}

	holder := ocr.NewHolderFromConfig(cfg.OCR.EngineConfig())
	defer holder.Close()

	// Engine failures are reported per job rather than killing the worker
	if err := holder.Load(); err != nil {
		log.Error().Err(err).Msg("Failed to load OCR engine")
	} else {
		log.Info().
			Str("engine", holder.Name()).
			Dur("load_time", holder.LoadTime()).
			Msg("OCR engine loaded")
		if cfg.OCR.PrewarmOnStart && !local {
			_ = prewarm.Run(ctx, holder, metrics)
		}
	}

	handler := serverless.NewHandler(
		inference.NewService(holder, metrics, inference.TransportServerless),
		metrics,
	)

	if local {
		if err := serverless.RunLocal(ctx, handler, job, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("Local job failed")
		}
		return
	}

	if err := cfg.Serverless.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid serverless configuration")
	}

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}

	// Only the health app is served: liveness and metrics
	server := api.NewServer(cfg, holder, metrics, tracer)
	healthErr := server.StartHealth()
	go func() {
		if err, ok := <-healthErr; ok {
			log.Error().Err(err).Msg("Health listener failed")
		}
	}()

	var keepWarm *prewarm.KeepWarm
	if cfg.OCR.KeepWarmSchedule != "" {
		keepWarm, err = prewarm.NewKeepWarm(cfg.OCR.KeepWarmSchedule, holder, metrics)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule keep-warm")
		}
		keepWarm.Start()
	}

	worker := serverless.NewWorker(cfg.Serverless, handler)
	if err := worker.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Job worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if keepWarm != nil {
		keepWarm.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Health listener forced to shutdown")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Worker exited")
}
