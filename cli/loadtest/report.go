// Package loadtest posts document pages to an OCR endpoint one at a time and
// aggregates timing statistics.
package loadtest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TimestampLayout is the report timestamp format
const TimestampLayout = "2006-01-02 15:04:05"

// PageResult is the outcome of one page. Times are in seconds.
type PageResult struct {
	Page        int             `json:"page" yaml:"page"`
	Success     bool            `json:"success" yaml:"success"`
	TextLines   int             `json:"text_lines" yaml:"text_lines"`
	ConvertTime float64         `json:"convert_time" yaml:"convert_time"`
	OCRTime     float64         `json:"ocr_time" yaml:"ocr_time"`
	TotalTime   float64         `json:"total_time" yaml:"total_time"`
	Result      json.RawMessage `json:"result,omitempty" yaml:"-"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary aggregates page results. Averages cover successful pages only.
type Summary struct {
	TotalPages     int     `json:"total_pages" yaml:"total_pages"`
	Successful     int     `json:"successful" yaml:"successful"`
	Failed         int     `json:"failed" yaml:"failed"`
	TotalTextLines int     `json:"total_text_lines" yaml:"total_text_lines"`
	TotalTime      float64 `json:"total_time" yaml:"total_time"`
	AvgOCRTime     float64 `json:"avg_ocr_time" yaml:"avg_ocr_time"`
	AvgTotalTime   float64 `json:"avg_total_time" yaml:"avg_total_time"`
	PagesPerSecond float64 `json:"pages_per_second" yaml:"pages_per_second"`
}

// Report is written to the output file
type Report struct {
	Endpoint  string       `json:"endpoint" yaml:"endpoint"`
	InputFile string       `json:"input_file" yaml:"input_file"`
	Timestamp string       `json:"timestamp" yaml:"timestamp"`
	Summary   Summary      `json:"summary" yaml:"summary"`
	Results   []PageResult `json:"results" yaml:"results"`
}

// Summarize computes the summary for results. elapsed is the wall time of the whole
// run including page extraction.
func Summarize(results []PageResult, elapsed time.Duration) Summary {
	s := Summary{
		TotalPages: len(results),
		TotalTime:  elapsed.Seconds(),
	}

	var ocrSum, totalSum float64
	for _, r := range results {
		if !r.Success {
			s.Failed++
			continue
		}
		s.Successful++
		s.TotalTextLines += r.TextLines
		ocrSum += r.OCRTime
		totalSum += r.TotalTime
	}

	divisor := float64(max(s.Successful, 1))
	s.AvgOCRTime = ocrSum / divisor
	s.AvgTotalTime = totalSum / divisor
	if s.TotalTime > 0 {
		s.PagesPerSecond = float64(s.TotalPages) / s.TotalTime
	}
	return s
}

// WriteFile writes the report as indented JSON
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
