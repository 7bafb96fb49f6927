package inference

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wayli-app/ocrserve/internal/ocr"
)

// ImageList is the images field of a request. It accepts a single string or a list of strings.
type ImageList []string

// UnmarshalJSON accepts "abc", ["abc", "def"] or null. An empty string is an empty list.
func (l *ImageList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		*l = ImageList{s}
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("images must be a string or a list of strings: %w", err)
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("images must be a string or a list of strings")
	}
}

// Request is the body of an OCR request
type Request struct {
	Images ImageList `json:"images"`
}

// Response is returned by both transports
type Response struct {
	Success   bool              `json:"success"`
	Results   []ocr.ImageResult `json:"results,omitempty"`
	Error     string            `json:"error,omitempty"`
	Traceback string            `json:"traceback,omitempty"`
}

// Succeeded builds a success response
func Succeeded(results []ocr.ImageResult) Response {
	if results == nil {
		results = []ocr.ImageResult{}
	}
	return Response{Success: true, Results: results}
}

// Failed builds a failure response. The traceback is set only for internal errors.
func Failed(err error) Response {
	e := AsError(err)
	resp := Response{Success: false, Error: e.Error()}
	if e.Kind == KindInternal {
		resp.Traceback = e.Trace
	}
	return resp
}

// NewResponse builds the response for a batch result
func NewResponse(results []ocr.ImageResult, err error) Response {
	if err != nil {
		return Failed(err)
	}
	return Succeeded(results)
}
