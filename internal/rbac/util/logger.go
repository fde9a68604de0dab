package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

// LogFormat selects the slog handler.
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	level  slog.Level
	format LogFormat
	output io.Writer
	attrs  []slog.Attr
}

func WithLevel(level string) LoggerOption {
	return func(c *loggerConfig) {
		switch strings.ToLower(level) {
		case "debug":
			c.level = slog.LevelDebug
		case "warn", "warning":
			c.level = slog.LevelWarn
		case "error":
			c.level = slog.LevelError
		default:
			c.level = slog.LevelInfo
		}
	}
}

func WithFormat(format string) LoggerOption {
	return func(c *loggerConfig) {
		if LogFormat(strings.ToLower(format)) == FormatText {
			c.format = FormatText
			return
		}
		c.format = FormatJSON
	}
}

// WithOutput ignores nil writers.
func WithOutput(w io.Writer) LoggerOption {
	return func(c *loggerConfig) {
		if w != nil {
			c.output = w
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) LoggerOption {
	return func(c *loggerConfig) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// NewLogger builds a logger. Defaults to JSON at info level on stdout.
func NewLogger(opts ...LoggerOption) *slog.Logger {
	cfg := &loggerConfig{level: slog.LevelInfo, format: FormatJSON, output: os.Stdout}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.level}
	var handler slog.Handler
	if cfg.format == FormatText {
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		handler = handler.WithAttrs(cfg.attrs)
	}
	return slog.New(handler)
}

func InitLogger(opts ...LoggerOption) {
	Logger = NewLogger(opts...)
	slog.SetDefault(Logger)
}

func GetLogger() *slog.Logger {
	if Logger == nil {
		InitLogger()
	}
	return Logger
}

// OrDefault returns l, or the process logger when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return GetLogger()
}
