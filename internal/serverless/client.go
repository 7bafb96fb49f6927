package serverless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wayli-app/ocrserve/internal/inference"
)

const idPlaceholder = "$ID"

// QueueClient talks to a RunPod style job API
type QueueClient struct {
	getJobURL     string
	postOutputURL string
	apiKey        string
	httpClient    *http.Client
}

// NewQueueClient creates a queue client. URLs may contain $ID, replaced by the
// worker ID when taking a job and by the job ID when posting output.
func NewQueueClient(getJobURL, postOutputURL, apiKey string, timeout time.Duration) *QueueClient {
	return &QueueClient{
		getJobURL:     getJobURL,
		postOutputURL: postOutputURL,
		apiKey:        apiKey,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// outputEnvelope is the body posted back for a finished job
type outputEnvelope struct {
	Output inference.Response `json:"output"`
}

// NextJob takes the next job for workerID. It returns nil, nil when the queue is empty.
func (c *QueueClient) NextJob(ctx context.Context, workerID string) ([]byte, error) {
	url := strings.ReplaceAll(c.getJobURL, idPlaceholder, workerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create job request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		return body, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("job request returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
}

// PostOutput reports a job result
func (c *QueueClient) PostOutput(ctx context.Context, jobID string, output inference.Response) error {
	payload, err := json.Marshal(outputEnvelope{Output: output})
	if err != nil {
		return fmt.Errorf("failed to marshal job output: %w", err)
	}

	url := strings.ReplaceAll(c.postOutputURL, idPlaceholder, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create output request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post job output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("output request returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return nil
}

func (c *QueueClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
