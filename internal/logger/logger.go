// Package logger configures the process-wide zap logger. Every subsystem
// logs through a component logger from Named ("viewer", "export", "server",
// ...); the component is rendered as a bracketed column after the level.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process logger. It is nil until Init.
var Log *zap.Logger

// helpers backs the package-level Info/Warn/... functions, skipping one
// frame so the caller column points at the call site.
var helpers *zap.Logger

// componentWidth pads component names so messages line up in the console.
const componentWidth = 8

// FileConfig holds rotating log file settings.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultFileConfig returns rotation settings sized for long export runs.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{
		Path:       path,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

// Options selects the sinks of the process logger.
type Options struct {
	Level string
	File  FileConfig
	// Console receives colored output. Nil disables the console sink.
	Console io.Writer
}

// Init logs to stderr and, when logFile is set, to a rotating file.
// Console output goes to stderr so command output on stdout stays clean.
func Init(level string, logFile string) error {
	opts := Options{Level: level, Console: os.Stderr}
	if logFile != "" {
		opts.File = DefaultFileConfig(logFile)
	}
	return InitWith(opts)
}

// InitWithFileConfig logs to fileCfg and optionally to stderr.
func InitWithFileConfig(level string, fileCfg FileConfig, consoleOutput bool) error {
	opts := Options{Level: level, File: fileCfg}
	if consoleOutput {
		opts.Console = os.Stderr
	}
	return InitWith(opts)
}

// InitWith builds the process logger from opts and installs it.
func InitWith(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	Log = l
	helpers = l.WithOptions(zap.AddCallerSkip(1))
	return nil
}

// New builds a logger from opts without installing it.
func New(opts Options) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(opts.Level)
	if opts.Level == "" {
		lvl, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		enc := zapcore.NewConsoleEncoder(encoderConfig(false))
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(opts.Console), lvl))
	}
	if opts.File.Path != "" {
		w := &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
			LocalTime:  true,
		}
		enc := zapcore.NewConsoleEncoder(encoderConfig(true))
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), lvl))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// encoderConfig shares the layout between sinks. Files get full timestamps
// and no color codes.
func encoderConfig(file bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		CallerKey:        "caller",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeName:       encodeComponent,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if file {
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg
}

func encodeComponent(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%-*s]", componentWidth, name))
}

// Named returns the logger of one component. Before Init it returns a no-op
// logger, so packages may log from tests without setup.
func Named(component string) *zap.Logger {
	if Log == nil {
		return zap.NewNop()
	}
	return Log.Named(component)
}

// Sync flushes buffered entries.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func helper() *zap.Logger {
	if helpers == nil {
		return zap.NewNop()
	}
	return helpers
}

// Debug logs at debug level without a component.
func Debug(msg string, fields ...zap.Field) { helper().Debug(msg, fields...) }

// Info logs at info level without a component.
func Info(msg string, fields ...zap.Field) { helper().Info(msg, fields...) }

// Warn logs at warn level without a component.
func Warn(msg string, fields ...zap.Field) { helper().Warn(msg, fields...) }

// Error logs at error level without a component.
func Error(msg string, fields ...zap.Field) { helper().Error(msg, fields...) }
