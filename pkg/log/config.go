package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Config defines logging configuration.
type Config struct {
	// Level sets the minimum log level
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format sets the output format (json, text)
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// RedactedFields lists field names whose values are masked. Empty means
	// DefaultRedactedFields.
	RedactedFields []string `json:"redacted_fields" yaml:"redacted_fields" mapstructure:"redacted_fields"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
	}
}

// ApplyConfig creates a logger from a configuration writing to w. A nil w
// means stderr.
func ApplyConfig(config *Config, w io.Writer) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(config.Format) {
	case "json":
		formatter = &JSONFormatter{}
	case "text", "":
		tf := NewTextFormatter()
		// Colors only when writing to an interactive stderr.
		tf.DisableColors = w != nil || !term.IsTerminal(int(os.Stderr.Fd()))
		formatter = tf
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}

	redact := config.RedactedFields
	if len(redact) == 0 {
		redact = DefaultRedactedFields
	}

	var output Output = NewConsoleOutput()
	if w != nil {
		output = NewConsoleOutput(WithCustomWriter(w))
	}

	return &BaseLogger{
		level:     level,
		fields:    Fields{},
		formatter: formatter,
		outputs:   []Output{output},
		hooks:     []Hook{NewRedactionHook(redact)},
	}, nil
}

// ParseLevel parses a level string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
