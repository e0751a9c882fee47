package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wasnt-me/internal/config"
)

var writer io.Writer = os.Stdout

// Init configures the global logger. When cfg.File is set, output goes to a
// size-limited file so long-running display clients don't fill the disk.
func Init(cfg config.LogConfig) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
			level = parsed
		}
	}

	writer = os.Stdout
	if cfg.File != "" {
		if w, err := newCappedFile(cfg.File, cfg.MaxMB); err == nil {
			writer = w
		}
	}
	output := writer
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: writer}
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Writer returns the sink Init selected, for handing to non-zerolog loggers.
func Writer() io.Writer {
	return writer
}
