package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin structured wrapper over zerolog. Warnings and errors are
// also handed to the digest collector when one is attached.
type Logger struct {
	zl   zerolog.Logger
	slot *collectorSlot
}

// collectorSlot is shared by a logger and every child made with With, so a
// collector attached later is seen by all of them.
type collectorSlot struct {
	p atomic.Pointer[LogCollector]
}

type Config struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
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
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "ignitex").
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl, slot: &collectorSlot{}}, nil
}

// NewWithWriter logs JSON to w at level. Tests use it to inspect output.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger(), slot: &collectorSlot{}}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), slot: &collectorSlot{}}
}

// With returns a child logger that always carries fields.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{zl: ctx.Logger(), slot: l.slot}
}

func (l *Logger) log(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.log(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(l.zl.Warn(), msg, fields)
	l.collect("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.log(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

func (l *Logger) collect(level, msg string, fields []Field) {
	c := l.slot.p.Load()
	if c == nil {
		return
	}
	// collect -> Warn/Error -> caller
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.Index(file, "IgniteX/"); i >= 0 {
			file = file[i+len("IgniteX/"):]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	c.AddLog(level, msg, m, caller)
}

// AddCollector attaches a digest collector, replacing and closing any previous one.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if old := l.slot.p.Swap(NewLogCollector(config)); old != nil {
		old.Close()
	}
}

// RemoveCollector detaches the collector after a final flush.
func (l *Logger) RemoveCollector() {
	if old := l.slot.p.Swap(nil); old != nil {
		old.Close()
	}
}

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
	apply func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Strs(key, value) }}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Bool(key, value) }}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Interface(key, value) }}
}

// Error logs under "error". A nil err logs nothing.
func Error(err error) Field {
	var msg interface{}
	if err != nil {
		msg = err.Error()
	}
	return Field{Key: "error", Value: msg, apply: func(e *zerolog.Event) { e.Err(err) }}
}

// Duration logs milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int64(key+"_ms", value.Milliseconds())
}

func Time(key string, value time.Time) Field {
	return String(key, value.UTC().Format(time.RFC3339))
}
