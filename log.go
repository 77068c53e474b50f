package tpool

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Log struct {
	access *zap.Logger
	err    *zap.Logger
	app    *zap.Logger
}

func NewLog(cfg LogConfig) *Log {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	// access: one line per served request
	accessCore := rotatingCore(encoder, cfg, cfg.AccessFile, zap.InfoLevel)
	errorCore := rotatingCore(encoder, cfg, cfg.ErrorFile, zap.ErrorLevel)
	// app: worker lifecycle and per-job debug lines
	appCore := rotatingCore(encoder, cfg, cfg.AppFile, zap.DebugLevel)

	return &Log{
		access: zap.New(accessCore, zap.AddCaller()),
		err:    zap.New(errorCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		app:    zap.New(appCore, zap.AddCaller()),
	}
}

// NopLog discards everything.
func NopLog() *Log {
	return &Log{
		access: zap.NewNop(),
		err:    zap.NewNop(),
		app:    zap.NewNop(),
	}
}

func rotatingCore(enc zapcore.Encoder, cfg LogConfig, filename string, level zapcore.Level) zapcore.Core {
	if filename == "" {
		return zapcore.NewNopCore()
	}
	return zapcore.NewCore(
		enc,
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}),
		level,
	)
}

func (l *Log) Access(msg string, fields ...zap.Field) {
	l.access.Info(msg, fields...)
}

func (l *Log) Error(err error, msg string, fields ...zap.Field) {
	l.err.Error(msg, append(fields, zap.Error(err))...)
}

func (l *Log) App(msg string, fields ...zap.Field) {
	l.app.Info(msg, fields...)
}

func (l *Log) Debug(msg string, fields ...zap.Field) {
	l.app.Debug(msg, fields...)
}

// Sync flushes all three loggers.
func (l *Log) Sync() error {
	return multierr.Combine(l.access.Sync(), l.err.Sync(), l.app.Sync())
}
