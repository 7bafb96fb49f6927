package serverless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// LoadTestInput returns the job to run locally. An inline JSON value wins over the file;
// found is false when neither is present.
func LoadTestInput(inline, path string) (job Job, found bool, err error) {
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case path != "":
		data, err = os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return Job{}, false, nil
		}
		if err != nil {
			return Job{}, false, fmt.Errorf("failed to read %s: %w", path, err)
		}
	default:
		return Job{}, false, nil
	}

	job, err = DecodeJob(data)
	if err != nil {
		return Job{}, true, err
	}
	if job.ID == "" {
		job.ID = "local-" + uuid.New().String()
	}
	return job, true, nil
}

// RunLocal handles a single job and writes the response as indented JSON
func RunLocal(ctx context.Context, handler *Handler, job Job, out io.Writer) error {
	resp := handler.Handle(ctx, job)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
