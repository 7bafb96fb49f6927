// Package prewarm runs a synthetic inference so the first real request does not pay for
// engine construction and cold model pages.
package prewarm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/observability"
	"github.com/wayli-app/ocrserve/internal/ocr"
	"github.com/wayli-app/ocrserve/internal/raster"
)

// Size is the edge length of the synthetic raster
const Size = 512

// Run constructs the engine and recognizes one random raster. Failures are logged and
// returned but never fatal to the caller.
func Run(ctx context.Context, holder *ocr.Holder, metrics *observability.Metrics) error {
	start := time.Now()
	before := observability.SnapshotMemory()

	log.Info().
		Uint64("memory_available_mb", before.AvailableMB).
		Uint64("process_rss_mb", before.ProcessMB).
		Msg("Prewarming OCR engine")

	err := run(ctx, holder)
	metrics.RecordPrewarm(err)

	after := observability.SnapshotMemory()
	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Dur("duration", time.Since(start)).
		Uint64("memory_available_mb", after.AvailableMB).
		Uint64("process_rss_mb", after.ProcessMB).
		Int64("process_rss_delta_mb", int64(after.ProcessMB)-int64(before.ProcessMB)).
		Bool("success", err == nil).
		Msg("Prewarm finished")

	return err
}

func run(ctx context.Context, holder *ocr.Holder) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("prewarm panicked: %v", rec)
		}
	}()

	engine, err := holder.Get()
	if err != nil {
		return fmt.Errorf("failed to load OCR engine: %w", err)
	}

	img := raster.Random(Size, Size, rand.New(rand.NewSource(time.Now().UnixNano())))
	if _, err := engine.Recognize(ctx, img); err != nil {
		return fmt.Errorf("synthetic inference failed: %w", err)
	}
	return nil
}
