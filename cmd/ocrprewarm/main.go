package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/config"
	"github.com/wayli-app/ocrserve/internal/logging"
	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/prewarm"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"

	showVersion = flag.Bool("version", false, "Show version information")
)

// Prewarm always exits 0 so it can run as a best-effort build or boot step.
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ocrprewarm %s\n", Version)
		os.Exit(0)
	}

	logging.Setup(logging.FormatAuto, false)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration, skipping prewarm")
		return
	}
	logging.Setup(cfg.LogFormat, cfg.Debug)
	observability.LogHostInfo(cfg.OCR.OMPNumThreads, cfg.OCR.MKLNumThreads)

	holder := ocr.NewHolderFromConfig(cfg.OCR.EngineConfig())
	defer holder.Close()

	_ = prewarm.Run(context.Background(), holder, nil)
}
