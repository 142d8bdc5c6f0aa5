// Package logging builds the process slog.Logger on a zap core that writes
// console output and, when a file is configured, rotating JSON logs.
package logging

import (
	"io"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a slog.Logger backed by zap. Sync flushes buffered entries
// and Close releases the log file.
type Logger struct {
	*slog.Logger
	core zapcore.Core
	file *lumberjack.Logger
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New creates a Logger writing console-encoded entries to console and, when
// cfg.File is set, JSON entries to a lumberjack-rotated file.
func New(cfg *Config, console io.Writer) *Logger {
	level := zap.NewAtomicLevelAt(cfg.ZapLevel())
	enc := encoderConfig()

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(console), level),
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(file), level))
	}

	core := zapcore.NewTee(cores...)
	handler := zapslog.NewHandler(core,
		zapslog.WithCaller(true),
		zapslog.AddStacktraceAt(slog.LevelError),
	)

	return &Logger{
		Logger: slog.New(handler),
		core:   core,
		file:   file,
	}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.core.Sync()
}

// Close flushes entries and closes the log file, if any. Console sync
// errors are ignored since stderr does not support fsync on every platform.
func (l *Logger) Close() error {
	l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
