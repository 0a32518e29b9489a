// Package logger builds the engine's hierarchical per-run, per-step
// loggers on top of charmbracelet/log.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a root logger at workflow-start time.
type Options struct {
	Writer       io.Writer
	Level        string // DEBUG|INFO|WARNING|ERROR
	OutputFormat string // text|json
	Name         string // e.g. "engine.<workflow>"
}

// Logger wraps a charmbracelet/log.Logger and remembers its own name so
// children can extend the "engine.<workflow>.<step>" hierarchy.
type Logger struct {
	base *cblog.Logger
	name string
}

// New creates the root logger for a workflow run.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cbOpts := cblog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05Z07:00",
	}
	if strings.EqualFold(opts.OutputFormat, "json") {
		cbOpts.Formatter = cblog.JSONFormatter
	}

	base := cblog.NewWithOptions(writer, cbOpts)
	name := opts.Name
	if name == "" {
		name = "engine"
	}
	base.SetPrefix(name)

	return &Logger{base: base, name: name}, nil
}

func parseLevel(level string) (cblog.Level, error) {
	if level == "" {
		return cblog.InfoLevel, nil
	}
	lower := strings.ToLower(level)
	if lower == "warning" {
		lower = "warn"
	}
	return cblog.ParseLevel(lower)
}

// Named returns a child logger whose name and prefix are "parent.child",
// matching the hierarchy engine.<workflow>.<step>[.<matrix_coord>]
// described in the execution-context design.
func (l *Logger) Named(child string) *Logger {
	if l == nil {
		return nil
	}
	name := l.name + "." + child
	sub := l.base.With()
	sub.SetPrefix(name)
	return &Logger{base: sub, name: name}
}

// WithFields returns a derived logger that always includes the supplied
// key/value pairs, iterated in sorted key order for deterministic output.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{base: l.base.With(args...), name: l.name}
}

func (l *Logger) Debug(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.base.Debug(shortSource(msg), kv...)
}

func (l *Logger) Info(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.base.Info(shortSource(msg), kv...)
}

func (l *Logger) Warn(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.base.Warn(shortSource(msg), kv...)
}

func (l *Logger) Error(err error, msg string, kv ...any) {
	if l == nil {
		return
	}
	if err != nil {
		kv = append(kv, "error", err)
	}
	l.base.Error(shortSource(msg), kv...)
}

// shortSource rewrites absolute source paths embedded in a message (stages
// sometimes interpolate a file path into a diagnostic) down to a
// package-relative short form, e.g. ".../internal/stages/update/update.go"
// becomes "stages/update/update.go".
func shortSource(msg string) string {
	if !strings.Contains(msg, string(os.PathSeparator)) {
		return msg
	}
	idx := strings.Index(msg, "internal"+string(os.PathSeparator))
	if idx < 0 {
		return msg
	}
	start := strings.LastIndexAny(msg[:idx], " \t\"'=") + 1
	return msg[:start] + filepath.ToSlash(msg[idx+len("internal")+1:])
}
