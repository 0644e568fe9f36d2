// Package logger wraps logrus with the defaults shared by every storefront component.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig mirrors the logging block of the application config.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// Logger is a logrus logger carrying a component name.
type Logger struct {
	*logrus.Logger
	component string
}

type ctxKey struct{}

// New builds a logger from cfg. Unknown levels fall back to info, unknown formats to text.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	l.SetOutput(openOutput(cfg))
	return &Logger{Logger: l}
}

// NewDefault returns an info-level text logger tagged with component.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	log.component = component
	return log
}

// Named returns a logger sharing the same sink but tagged with another component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Component reports the component tag, empty for the root logger.
func (l *Logger) Component() string { return l.component }

// WithField starts an entry with the component tag and one extra field.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields starts an entry with the component tag and extra fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// WithError starts an entry carrying err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// WithContext returns the entry stored in ctx by IntoContext, or a fresh one.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && entry != nil {
			return entry
		}
	}
	return l.entry()
}

// IntoContext stores entry in ctx so downstream calls share request fields.
func IntoContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

func (l *Logger) entry() *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	if l.component != "" {
		entry = entry.WithField("component", l.component)
	}
	return entry
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "storefront"
		}
		name := filepath.Clean(prefix + "-" + time.Now().Format("20060102") + ".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return os.Stderr
		}
		return f
	default:
		return os.Stdout
	}
}
