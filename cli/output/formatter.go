// Package output provides output formatting for the ocrload CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/wayli-app/ocrserve/cli/loadtest"
	"github.com/wayli-app/ocrserve/cli/util"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter formats output in various formats
type Formatter struct {
	Format Format
	Quiet  bool
	Writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(format Format, quiet bool) *Formatter {
	return &Formatter{
		Format: format,
		Quiet:  quiet,
		Writer: os.Stdout,
	}
}

// Print outputs data in the configured format
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatYAML:
		return f.printYAML(data)
	default:
		return f.printJSON(data)
	}
}

func (f *Formatter) printJSON(data interface{}) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// PrintTable prints formatted table output
func (f *Formatter) PrintTable(data TableData) {
	if f.Quiet {
		return
	}

	table := tablewriter.NewWriter(f.Writer)
	if len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}

	// Configure table style
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows)
	table.Render()
}

// PrintReport prints the run summary. Table mode adds one row per page; JSON and YAML
// print the summary with per-page results minus the raw responses.
func (f *Formatter) PrintReport(report *loadtest.Report) error {
	if f.Quiet {
		return nil
	}

	if f.Format != FormatTable {
		pages := make([]loadtest.PageResult, len(report.Results))
		for i, r := range report.Results {
			r.Result = nil
			pages[i] = r
		}
		return f.Print(&loadtest.Report{
			Endpoint:  report.Endpoint,
			InputFile: report.InputFile,
			Timestamp: report.Timestamp,
			Summary:   report.Summary,
			Results:   pages,
		})
	}

	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		rows = append(rows, []string{
			fmt.Sprint(r.Page),
			status,
			fmt.Sprint(r.TextLines),
			fmt.Sprintf("%.2fs", r.OCRTime),
			fmt.Sprintf("%.2fs", r.TotalTime),
			util.TruncateString(r.Error, 60),
		})
	}
	f.PrintTable(TableData{
		Headers: []string{"PAGE", "STATUS", "LINES", "OCR", "TOTAL", "ERROR"},
		Rows:    rows,
	})

	s := report.Summary
	_, _ = fmt.Fprintf(f.Writer, "\nTotal pages:          %d\n", s.TotalPages)
	_, _ = fmt.Fprintf(f.Writer, "Successful:           %d\n", s.Successful)
	_, _ = fmt.Fprintf(f.Writer, "Failed:               %d\n", s.Failed)
	_, _ = fmt.Fprintf(f.Writer, "Total text lines:     %d\n\n", s.TotalTextLines)
	_, _ = fmt.Fprintf(f.Writer, "Total time:           %.2fs\n", s.TotalTime)
	_, _ = fmt.Fprintf(f.Writer, "Avg OCR time:         %.2fs/page\n", s.AvgOCRTime)
	_, _ = fmt.Fprintf(f.Writer, "Avg total time:       %.2fs/page\n", s.AvgTotalTime)
	_, _ = fmt.Fprintf(f.Writer, "Pages per second:     %.2f\n", s.PagesPerSecond)
	return nil
}

// PrintSuccess prints a success message
func (f *Formatter) PrintSuccess(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintWarning prints a warning message
func (f *Formatter) PrintWarning(message string) {
	if f.Quiet {
		return
	}
	fmt.Fprintln(os.Stderr, "Warning:", message)
}
