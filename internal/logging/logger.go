package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. format is "json" or "console".
func New(level, format string) (zerolog.Logger, error) {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).With().Timestamp().Str("service", "market-oracle").Logger(), nil
}
