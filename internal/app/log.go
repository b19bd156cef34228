package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

// LogFileName is the active log file inside the log dir. Rotated copies sit
// next to it.
const LogFileName = "goaltrack.log"

// newLogger builds a zap logger that writes every record at or above the
// configured level to a rotating file in logDir and, when enabled, warnings
// and errors to stderr. Lines are tab separated:
//
//	<timestamp>\t<level>\t<message>\t{"op": ..., key: value ...}
//
// The returned closer flushes and closes the file.
func newLogger(cfg config.LogConfig, logDir string, opID string, stderr io.Writer) (*zap.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = zapcore.OmitKey

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(file), level),
	}
	if cfg.Stderr && stderr != nil {
		warn := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.WarnLevel && l >= level
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(stderr)), warn))
	}

	logger := zap.New(zapcore.NewTee(cores...)).With(zap.String("op", opID))
	return logger, closerFunc(func() error {
		_ = logger.Sync()
		return file.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// zapAdapter wraps a sugared zap logger to satisfy gt.Logger.
type zapAdapter struct {
	s *zap.SugaredLogger
}

var _ gt.Logger = (*zapAdapter)(nil)

func newZapAdapter(l *zap.Logger) *zapAdapter {
	return &zapAdapter{s: l.Sugar()}
}

func (a *zapAdapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a *zapAdapter) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a *zapAdapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a *zapAdapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
