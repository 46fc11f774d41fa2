package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
)

// Config describes a process logger.
type Config struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
	// Output is "stderr" (default), "stdout" or a file path.
	Output string `json:"output" yaml:"output" toml:"output"`
	// Redact lists field keys whose values are masked.
	Redact []string `json:"redact" yaml:"redact" toml:"redact"`
}

// ParseLevel maps a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	var out Output
	switch cfg.Output {
	case "", "stderr":
		out = NewConsoleOutput()
	case "stdout":
		out = &ConsoleOutput{Writer: os.Stdout}
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log output: %w", err)
		}
		out = NewWriterOutput(f)
	}
	return NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(out),
		WithRedactions(cfg.Redact...),
	), nil
}

// RedirectStdLog routes the standard library logger (used by Pebble and
// net/http) through logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{logger: logger})
}

type stdWriter struct{ logger Logger }

var _ io.Writer = stdWriter{}

func (w stdWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"), Str("source", "stdlog"))
	return len(p), nil
}

// Nop returns a logger that discards everything. Tests use it.
func Nop() Logger {
	return NewLogger(WithLevel(FatalLevel+1), WithOutput(NewWriterOutput(io.Discard)))
}
