package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl      zerolog.Logger
	journal *Journal
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string // time format for log messages
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}, nil
}

// AttachJournal makes warn/error events visible through the fault journal
// in addition to the log stream.
func (l *Logger) AttachJournal(j *Journal) { l.journal = j }

func (l *Logger) record(level, msg string, fields []Field) {
	if l.journal == nil {
		return
	}
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		k, v := f.KeyValue()
		m[k] = v
	}
	l.journal.Record(level, msg, m)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	event := l.zl.Debug()
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
}

func (l *Logger) Info(msg string, fields ...Field) {
	event := l.zl.Info()
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	event := l.zl.Warn()
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
	l.record("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	event := l.zl.Error()
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
	l.record("error", msg, fields)
}

// Field is a typed structured-logging attribute.
type Field interface {
	AddTo(event *zerolog.Event)
	KeyValue() (string, interface{})
}

type stringField struct {
	key   string
	value string
}

func (f stringField) AddTo(event *zerolog.Event) { event.Str(f.key, f.value) }
func (f stringField) KeyValue() (string, interface{}) { return f.key, f.value }

type intField struct {
	key   string
	value int
}

func (f intField) AddTo(event *zerolog.Event) { event.Int(f.key, f.value) }
func (f intField) KeyValue() (string, interface{}) { return f.key, f.value }

type int64Field struct {
	key   string
	value int64
}

func (f int64Field) AddTo(event *zerolog.Event) { event.Int64(f.key, f.value) }
func (f int64Field) KeyValue() (string, interface{}) { return f.key, f.value }

type uint64Field struct {
	key   string
	value uint64
}

func (f uint64Field) AddTo(event *zerolog.Event) { event.Uint64(f.key, f.value) }
func (f uint64Field) KeyValue() (string, interface{}) { return f.key, f.value }

type float64Field struct {
	key   string
	value float64
}

func (f float64Field) AddTo(event *zerolog.Event) { event.Float64(f.key, f.value) }
func (f float64Field) KeyValue() (string, interface{}) { return f.key, f.value }

type boolField struct {
	key   string
	value bool
}

func (f boolField) AddTo(event *zerolog.Event) { event.Bool(f.key, f.value) }
func (f boolField) KeyValue() (string, interface{}) { return f.key, f.value }

type errorField struct {
	value error
}

func (f errorField) AddTo(event *zerolog.Event) { event.Err(f.value) }
func (f errorField) KeyValue() (string, interface{}) {
	if f.value == nil {
		return "error", nil
	}
	return "error", f.value.Error()
}

type anyField struct {
	key   string
	value interface{}
}

func (f anyField) AddTo(event *zerolog.Event) { event.Interface(f.key, f.value) }
func (f anyField) KeyValue() (string, interface{}) { return f.key, f.value }

// --- Field constructors ---

func String(key, value string) Field { return stringField{key: key, value: value} }

func Int(key string, value int) Field { return intField{key: key, value: value} }

func Int64(key string, value int64) Field { return int64Field{key: key, value: value} }

func Uint64(key string, value uint64) Field { return uint64Field{key: key, value: value} }

func Float64(key string, value float64) Field { return float64Field{key: key, value: value} }

func Bool(key string, value bool) Field { return boolField{key: key, value: value} }

func Error(err error) Field { return errorField{value: err} }

func Any(key string, value interface{}) Field { return anyField{key: key, value: value} }

func Duration(key string, value time.Duration) Field {
	return intField{key: key, value: int(value / time.Millisecond)}
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ", "))
}
