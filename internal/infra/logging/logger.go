// Package logging adapts zap to the service Logger interface, with optional
// size-based file rotation through lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"labstock/internal/config"
)

// Logger implements core.Logger over a sugared zap logger.
type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	file  io.Closer
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// rotated log file.
func New(cfg config.LogConfig) (*Logger, error) {
	return NewWithConsole(cfg, os.Stderr)
}

// NewWithConsole is New with the console output directed to w.
func NewWithConsole(cfg config.LogConfig, console io.Writer) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(console), level)}
	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		// files always get JSON so they stay machine readable
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(file), level))
	}
	l := FromZap(zap.New(zapcore.NewTee(cores...)))
	if file != nil {
		l.file = file
	}
	return l, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{base: z, sugar: z.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger { return FromZap(nil) }

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger { return l.base }

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Close flushes buffered entries and closes the log file, if any.
func (l *Logger) Close() error {
	_ = l.base.Sync() // stderr sync fails on some terminals
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
