// Package serverless adapts the OCR batch service to a job queue: one job object in,
// one response object out.
package serverless

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wayli-app/ocrserve/internal/inference"
	"github.com/wayli-app/ocrserve/internal/observability"
)

// JobInput is the payload of a job
type JobInput struct {
	Images inference.ImageList `json:"images"`
}

// Job is one unit of work handed out by the queue
type Job struct {
	ID    string   `json:"id,omitempty"`
	Input JobInput `json:"input"`
}

// rawJob defers input decoding so a malformed input still yields a job ID to report against
type rawJob struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

// DecodeJob parses a job. When only the input is malformed the returned job keeps its ID.
func DecodeJob(data []byte) (Job, error) {
	var raw rawJob
	if err := json.Unmarshal(data, &raw); err != nil {
		return Job{}, fmt.Errorf("invalid job: %w", err)
	}

	job := Job{ID: raw.ID}
	if len(raw.Input) == 0 {
		return job, nil
	}
	if err := json.Unmarshal(raw.Input, &job.Input); err != nil {
		return job, fmt.Errorf("invalid job input: %w", err)
	}
	return job, nil
}

// Handler runs jobs through the batch service
type Handler struct {
	service *inference.Service
	metrics *observability.Metrics
}

// NewHandler creates a job handler. metrics may be nil.
func NewHandler(service *inference.Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
	}
}

// Handle processes one job. It never returns an error; failures are encoded in the response.
func (h *Handler) Handle(ctx context.Context, job Job) inference.Response {
	start := time.Now()

	results, err := h.service.Process(ctx, job.Input.Images)
	resp := inference.NewResponse(results, err)

	if err != nil {
		observability.RecordError(ctx, err)
	}
	h.metrics.RecordJob(resp.Success)
	observability.SetJobResult(ctx, resp.Success, time.Since(start))

	event := log.Info()
	if !resp.Success {
		event = log.Warn().Str("error", resp.Error)
	}
	observability.TraceFields(ctx, event).
		Str("job_id", job.ID).
		Int("images", len(job.Input.Images)).
		Bool("success", resp.Success).
		Dur("duration", time.Since(start)).
		Msg("Job handled")

	return resp
}
