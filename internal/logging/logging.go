// Package logging builds the process logger from configuration: zap with a
// JSON or console encoder, writing to stdout or a size-rotated file. The
// returned atomic level lets a config reload change verbosity without a
// restart.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lawdesk/docket/internal/config"
)

// New builds a logger from the config. The caller owns Sync on shutdown.
func New(cfg config.LoggerConfig) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
	}
	atomic := zap.NewAtomicLevelAt(level)

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output == "file" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	} else {
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, atomic)
	logger := zap.New(core, zap.AddCaller())
	return logger.Sugar(), atomic, nil
}

// SetLevel applies a level string to a live logger. Used by the config
// watcher on reload; an unknown level is reported, not applied.
func SetLevel(atomic zap.AtomicLevel, level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logging: invalid level %q: %w", level, err)
	}
	atomic.SetLevel(parsed)
	return nil
}
