// Package logger configures the process-wide zerolog logger rather than a
// hand-rolled formatter.
package logger

import (
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Setup builds a zerolog.Logger at the given level, rendering a colorized
// console writer when stdout is a terminal and structured JSON otherwise.
func Setup(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var writer = os.Stdout
	if isatty.IsTerminal(writer.Fd()) {
		console := zerolog.ConsoleWriter{Out: colorable.NewColorable(writer), TimeFormat: "15:04:05"}
		return zerolog.New(console).With().Timestamp().Logger()
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
