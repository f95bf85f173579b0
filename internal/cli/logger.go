package cli

import (
	"io"
	"log/slog"

	"github.com/leapstack-labs/kgforge/internal/cli/config"
	"github.com/leapstack-labs/kgforge/internal/cli/output"
)

// NewLogger builds the process logger writing to w. The auto format picks
// text for a terminal and JSON otherwise.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if format == "" || format == config.LogFormatAuto {
		format = config.LogFormatJSON
		if output.IsTerminal(w) {
			format = config.LogFormatText
		}
	}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
