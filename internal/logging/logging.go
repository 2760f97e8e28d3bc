package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	App   string
	Level string
	// Debug forces debug level and turns on payload hex dumps.
	Debug bool
	// JSON writes plain JSON lines instead of the console format.
	JSON bool
	Out  io.Writer
}

// Init builds the process logger and installs it as the zerolog global.
func Init(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level := ParseLevel(opts.Level)
	if opts.Debug && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	hexDumps = opts.Debug

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}

// ParseLevel falls back to info for empty or unknown names.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

var hexDumps bool

// HexDumps reports whether payload dumps were requested.
func HexDumps() bool { return hexDumps }

// Component tags a child logger with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
