// Package log provides the leveled, structured logger used across jsflow.
// It is a thin layer over zap that keeps a small interface for packages to
// depend on.
package log

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name such as "debug" or "WARN" to a Level.
func ParseLevel(name string) (Level, bool) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(name)); err != nil {
		return InfoLevel, false
	}
	switch zl {
	case zapcore.DebugLevel:
		return DebugLevel, true
	case zapcore.InfoLevel:
		return InfoLevel, true
	case zapcore.WarnLevel:
		return WarnLevel, true
	case zapcore.ErrorLevel:
		return ErrorLevel, true
	}
	return InfoLevel, false
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger interface defines structured logging methods. Args are alternating
// keys and values.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
	// Named returns a child logger whose name is suffixed with name.
	Named(name string) Logger
	// With returns a child logger that adds args to every entry.
	With(args ...interface{}) Logger
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	// Stderr receives every entry. Defaults to os.Stderr.
	Stderr io.Writer
	// Name is the root logger name.
	Name string
}

// zapLogger implements Logger. Children created with Named or With share the
// level and output format of their root.
type zapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	json  *atomic.Bool
}

var (
	defaultLogger Logger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) Logger {
	out := cfg.Stderr
	if out == nil {
		out = os.Stderr
	}
	level := zap.NewAtomicLevelAt(cfg.Level.zap())
	jsonOn := new(atomic.Bool)
	jsonOn.Store(cfg.JSONOutput)

	ws := zapcore.Lock(zapcore.AddSync(out))
	core := &switchCore{
		console: zapcore.NewCore(consoleEncoder(isTerminal(out)), ws, level),
		json:    zapcore.NewCore(jsonEncoder(), ws, level),
		jsonOn:  jsonOn,
	}
	logger := zap.New(core, zap.AddStacktrace(zap.ErrorLevel))
	if cfg.Name != "" {
		logger = logger.Named(cfg.Name)
	}
	return &zapLogger{sugar: logger.Sugar(), level: level, json: jsonOn}
}

// FromZap wraps an existing zap logger, for example one from zaptest. The
// output format of the wrapped logger is fixed, so SetJSONOutput has no
// effect; SetLevel only raises the threshold above the core's own.
func FromZap(z *zap.Logger) Logger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	z = z.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &filterCore{Core: c, level: level}
	}))
	return &zapLogger{sugar: z.Sugar(), level: level, json: new(atomic.Bool)}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar(), level: zap.NewAtomicLevel(), json: new(atomic.Bool)}
}

// Default returns the default logger instance
func Default() Logger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel, Name: "jsflow"})
	})
	return defaultLogger
}

// Debug logs a debug message
func (l *zapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }

// Info logs an info message
func (l *zapLogger) Info(msg string, args ...interface{}) { l.sugar.Infow(msg, args...) }

// Warn logs a warning message
func (l *zapLogger) Warn(msg string, args ...interface{}) { l.sugar.Warnw(msg, args...) }

// Error logs an error message
func (l *zapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// SetLevel sets the minimum log level
func (l *zapLogger) SetLevel(level Level) { l.level.SetLevel(level.zap()) }

// SetJSONOutput enables or disables JSON output
func (l *zapLogger) SetJSONOutput(enabled bool) { l.json.Store(enabled) }

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{sugar: l.sugar.Named(name), level: l.level, json: l.json}
}

func (l *zapLogger) With(args ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(args...), level: l.level, json: l.json}
}

// switchCore writes through the JSON or the console core depending on a flag
// that can change after loggers were derived from it.
type switchCore struct {
	console zapcore.Core
	json    zapcore.Core
	jsonOn  *atomic.Bool
}

func (c *switchCore) active() zapcore.Core {
	if c.jsonOn.Load() {
		return c.json
	}
	return c.console
}

func (c *switchCore) Enabled(level zapcore.Level) bool { return c.console.Enabled(level) }

func (c *switchCore) With(fields []zapcore.Field) zapcore.Core {
	return &switchCore{console: c.console.With(fields), json: c.json.With(fields), jsonOn: c.jsonOn}
}

func (c *switchCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *switchCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.active().Write(ent, fields)
}

func (c *switchCore) Sync() error { return c.active().Sync() }

// filterCore drops entries below level before they reach the wrapped core.
type filterCore struct {
	zapcore.Core
	level zap.AtomicLevel
}

func (c *filterCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l) && c.Core.Enabled(l)
}

func (c *filterCore) With(fields []zapcore.Field) zapcore.Core {
	return &filterCore{Core: c.Core.With(fields), level: c.level}
}

func (c *filterCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.level.Enabled(ent.Level) {
		return ce
	}
	return c.Core.Check(ent, ce)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func consoleEncoder(colors bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if colors {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ":")
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// isTerminal reports whether w is a terminal that accepts color codes.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY checks if the standard error is a TTY
func IsTTY() bool {
	return isTerminal(os.Stderr)
}
