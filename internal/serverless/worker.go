package serverless

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/config"
	"github.com/wayli-app/ocrserve/internal/inference"
	"github.com/wayli-app/ocrserve/internal/observability"
)

// Worker polls the job queue and runs one job at a time
type Worker struct {
	ID           string
	Name         string
	handler      *Handler
	client       *QueueClient
	pollInterval time.Duration
}

// NewWorker creates a worker. The worker ID defaults to a random UUID when the platform
// does not provide one.
func NewWorker(cfg config.ServerlessConfig, handler *Handler) *Worker {
	id := cfg.WorkerID
	if id == "" {
		id = uuid.New().String()
	}
	hostname, _ := os.Hostname()

	return &Worker{
		ID:           id,
		Name:         fmt.Sprintf("worker-%s@%s", shortID(id), hostname),
		handler:      handler,
		client:       NewQueueClient(cfg.GetJobURL, cfg.PostOutputURL, cfg.APIKey, cfg.RequestTimeout),
		pollInterval: cfg.PollInterval,
	}
}

// Run polls until ctx is cancelled. Queue errors are logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().
		Str("worker_id", w.ID).
		Str("worker_name", w.Name).
		Dur("poll_interval", w.pollInterval).
		Msg("Starting job worker")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before waiting again
		for {
			handled, err := w.processNext(ctx)
			if err != nil {
				log.Error().Err(err).Str("worker_id", w.ID).Msg("Job queue error")
				break
			}
			if !handled || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			log.Info().Str("worker_id", w.ID).Msg("Job worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// processNext takes and runs one job. It reports whether a job was handled.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	data, err := w.client.NextJob(ctx, w.ID)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	if data == nil {
		return false, nil
	}

	job, decodeErr := DecodeJob(data)
	if job.ID == "" {
		return true, fmt.Errorf("job without id: %s", truncate(string(data), 200))
	}

	var resp inference.Response
	if decodeErr != nil {
		log.Warn().Err(decodeErr).Str("job_id", job.ID).Msg("Rejecting malformed job")
		resp = inference.Failed(decodeErr)
	} else {
		resp = w.execute(ctx, job)
	}

	// Output is posted even if shutdown started while the job ran
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := w.client.PostOutput(postCtx, job.ID, resp); err != nil {
		return true, fmt.Errorf("job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job Job) (resp inference.Response) {
	ctx, span := observability.StartJobSpan(ctx, job.ID, w.ID)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			observability.RecordError(ctx, fmt.Errorf("panic: %v", rec))
			log.Error().
				Interface("panic", rec).
				Str("job_id", job.ID).
				Msg("Panic in job execution - recovered, reporting job as failed")
			resp = inference.Response{
				Success:   false,
				Error:     fmt.Sprintf("panic: %v", rec),
				Traceback: string(debug.Stack()),
			}
		}
	}()

	log.Info().Str("job_id", job.ID).Str("worker_id", w.ID).Msg("Executing job")
	return w.handler.Handle(ctx, job)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
