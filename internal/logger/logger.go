package logger

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// zapLogger wraps a *zap.SugaredLogger and implements Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// Ensure zapLogger satisfies Logger.
var _ Logger = (*zapLogger)(nil)

// Debug logs at DebugLevel. keysAndValues are alternating key/value pairs.
func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at InfoLevel.
func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at WarnLevel.
func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at ErrorLevel.
func (l *zapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Narrative keeps an in-memory copy of every line logged during a run.
type Narrative struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (n *Narrative) Write(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.buf.Write(p)
}

// Sync implements zapcore.WriteSyncer.
func (n *Narrative) Sync() error { return nil }

// String returns the narrative collected so far.
func (n *Narrative) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.TrimRight(n.buf.String(), "\n")
}

type options struct {
	level     zapcore.Level
	console   zapcore.WriteSyncer
	runLog    string
	narrative *Narrative
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum level, e.g. "debug" or "info".
func WithLevel(level string) Option {
	return func(o *options) {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			o.level = lvl
		}
	}
}

// WithRunLog appends every entry to the file at path.
func WithRunLog(path string) Option {
	return func(o *options) {
		o.runLog = path
	}
}

// WithNarrative copies every entry into n.
func WithNarrative(n *Narrative) Option {
	return func(o *options) {
		o.narrative = n
	}
}

// WithConsole overrides the console destination (stderr by default).
func WithConsole(w zapcore.WriteSyncer) Option {
	return func(o *options) {
		o.console = w
	}
}

// Handle is a logger together with the resources it holds open.
type Handle struct {
	Logger
	sugar   *zap.SugaredLogger
	closers []func() error
}

// Close flushes buffered entries and closes the run log.
func (h *Handle) Close() error {
	_ = h.sugar.Sync()
	var first error
	for _, c := range h.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = ""
	return cfg
}

// New builds a zap logger writing to the console and, optionally, to the
// append-only run log and an in-memory narrative.
func New(opts ...Option) (*Handle, error) {
	o := &options{
		level:   zapcore.InfoLevel,
		console: zapcore.Lock(os.Stderr),
	}
	for _, opt := range opts {
		opt(o)
	}

	encCfg := encoderConfig()
	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), o.console, o.level),
	}
	var closers []func() error

	if o.runLog != "" {
		f, err := os.OpenFile(o.runLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open run log %q: %w", o.runLog, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(f), o.level))
		closers = append(closers, f.Close)
	}
	if o.narrative != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), o.narrative, o.level))
	}

	sugar := zap.New(zapcore.NewTee(cores...)).Sugar()
	globalSugar = sugar

	return &Handle{
		Logger:  &zapLogger{sugar: sugar},
		sugar:   sugar,
		closers: closers,
	}, nil
}

// globalSugar holds the most recently built SugaredLogger.
var globalSugar *zap.SugaredLogger

// Cleanup flushes any buffered log entries. Call at program exit.
func Cleanup() {
	if globalSugar != nil {
		_ = globalSugar.Sync()
	}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}
