package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`     // debug, info, warn, error
	Format   string `yaml:"format"`    // json or text
	FilePath string `yaml:"file_path"` // empty = stdout only
}

// NewLogger builds the root logger. The returned closer releases the log
// file when one is configured.
func (lc LoggingConfig) NewLogger() (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	if lc.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if lc.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(lc.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	if lc.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
