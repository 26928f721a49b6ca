// Package logging configures the global slog logger for the clipmesh binary.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a config value to a Format; anything unrecognised means
// auto-detection.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(s)) {
	case FormatText:
		return FormatText
	case FormatJSON:
		return FormatJSON
	}
	return FormatAuto
}

// ParseLevel maps a config value to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Setup installs the global slog handler on stderr: tinted when attached to
// a terminal (or when text is forced), JSON otherwise. Call once, after flag
// parsing.
func Setup(format Format, level slog.Level) {
	slog.SetDefault(slog.New(newHandler(os.Stderr, format, level)))
}

func newHandler(w *os.File, format Format, level slog.Level) slog.Handler {
	if format == FormatJSON || (format == FormatAuto && !IsTTY(w)) {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tinter.NewHandler(w, &tinter.Options{
		Level: level,
		// Sync events land milliseconds apart; whole seconds hide the order.
		TimeFormat: "15:04:05.000",
	})
}
