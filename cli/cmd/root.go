// Package cmd provides the Cobra commands for the ocrload CLI.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wayli-app/ocrserve/cli/client"
	"github.com/wayli-app/ocrserve/cli/document"
	"github.com/wayli-app/ocrserve/cli/loadtest"
	"github.com/wayli-app/ocrserve/cli/output"
	"github.com/wayli-app/ocrserve/cli/util"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	endpoint   string
	outputFile string
	outputFmt  string
	timeout    time.Duration
	rps        float64
	quiet      bool
	debug      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ocrload <input-file>",
	Short: "ocrload - Load test an ocrserve endpoint",
	Long: `ocrload sends every page of an image or PDF to an ocrserve HTTP endpoint,
one page at a time, and writes per-page timings and a summary to a JSON file.

Supported inputs: ` + document.SupportedTypes + `
PDF pages are rendered with pdftoppm (poppler-utils).

The endpoint is read from --endpoint or OCRSERVE_ENDPOINT_URL.

Examples:
  ocrload scan.pdf
  ocrload receipt.jpg --output receipt.json -o json
  ocrload book.pdf --rps 2 --timeout 2m`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
	},
	RunE: runLoadTest,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "",
		"OCR endpoint URL (default $OCRSERVE_ENDPOINT_URL)")
	rootCmd.Flags().StringVar(&outputFile, "output", "test_results.json",
		"file the JSON report is written to")
	rootCmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout,
		"per-request timeout")
	rootCmd.Flags().Float64Var(&rps, "rps", 0,
		"maximum requests per second (0 = unlimited)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "format", "o", "table",
		"summary format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Bind environment variables
	viper.SetEnvPrefix("OCRSERVE")
	_ = viper.BindEnv("endpoint_url") // OCRSERVE_ENDPOINT_URL

	rootCmd.AddCommand(versionCmd)
}

func resolveEndpoint() (string, error) {
	if endpoint != "" {
		return endpoint, nil
	}
	if url := viper.GetString("endpoint_url"); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("no endpoint configured: set OCRSERVE_ENDPOINT_URL or pass --endpoint")
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	url, err := resolveEndpoint()
	if err != nil {
		return err
	}
	inputFile := args[0]

	formatter := output.NewFormatter(format, quiet)
	formatter.Writer = cmd.OutOrStdout()

	// Progress goes to stderr so JSON/YAML on stdout stays parseable
	var progress io.Writer = cmd.ErrOrStderr()
	if quiet {
		progress = nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := execute(ctx, url, inputFile, progress)
	if err != nil {
		return err
	}

	if err := report.WriteFile(outputFile); err != nil {
		return err
	}
	if err := formatter.PrintReport(report); err != nil {
		return err
	}
	if format == output.FormatTable {
		formatter.PrintSuccess(fmt.Sprintf("\nResults saved to: %s", outputFile))
	}
	return nil
}

func execute(ctx context.Context, url, inputFile string, progress io.Writer) (*loadtest.Report, error) {
	start := time.Now()

	if progress != nil {
		fmt.Fprintf(progress, "Endpoint: %s\nInput file: %s\n", url, inputFile)
	}

	pages, err := document.NewExtractor().Extract(ctx, inputFile)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		fmt.Fprintf(progress, "Processing %d page(s) sequentially...\n", len(pages))
	}

	runner := &loadtest.Runner{
		Client: client.NewClient(url,
			client.WithTimeout(timeout),
			client.WithRateLimit(rps),
			client.WithDebug(debug),
		),
		Progress: progress,
		Inline:   progress == os.Stderr && util.IsTerminal(os.Stderr),
	}
	results := runner.Run(ctx, pages)

	return &loadtest.Report{
		Endpoint:  url,
		InputFile: inputFile,
		Timestamp: start.Format(loadtest.TimestampLayout),
		Summary:   loadtest.Summarize(results, time.Since(start)),
		Results:   results,
	}, nil
}
