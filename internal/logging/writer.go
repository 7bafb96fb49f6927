// Package logging configures the global zerolog logger for the binaries.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Output formats
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// NewWriter returns the log sink for format. "auto" picks console output when out is a
// terminal and JSON otherwise.
func NewWriter(format string, out *os.File) io.Writer {
	if resolveFormat(format, out) == FormatConsole {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return out
}

func resolveFormat(format string, out *os.File) string {
	switch format {
	case FormatConsole, FormatJSON:
		return format
	}
	if out != nil && term.IsTerminal(int(out.Fd())) {
		return FormatConsole
	}
	return FormatJSON
}

// Setup installs the global logger on stderr
func Setup(format string, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(NewWriter(format, os.Stderr))

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
