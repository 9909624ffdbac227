package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level, encoding and destination of the application logger.
type Options struct {
	Level  string
	Format string // "console" or "json"
	File   string // empty writes to Out
	Out    io.Writer
	App    string
}

// New builds a zerolog logger. The returned closer releases the log file, if
// one was opened, and is always safe to call.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}

	level, ok := ParseLevel(opts.Level)
	if !ok && strings.TrimSpace(opts.Level) != "" {
		return zerolog.Nop(), closer, fmt.Errorf("unknown log level %q", opts.Level)
	}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.File != "",
		}
	case "json":
	default:
		return zerolog.Nop(), closer, fmt.Errorf("unknown log format %q", opts.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	return ctx.Logger(), closer, nil
}

// NewNop returns a logger that discards everything.
func NewNop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel maps a user-supplied level name to a zerolog level. The second
// result is false for empty or unrecognised input, in which case info is returned.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
