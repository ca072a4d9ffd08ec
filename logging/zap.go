package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerProvider 基于 zap 的日志提供者
// 类别映射为 zap 的 logger name，字段映射为 zap.Any
type ZapLoggerProvider struct {
	base         *zap.Logger
	minimumLevel atomic.Int32
}

// NewZapLoggerProvider 包装一个已有的 zap.Logger；nil 时使用 zap.NewNop()
func NewZapLoggerProvider(base *zap.Logger) *ZapLoggerProvider {
	if base == nil {
		base = zap.NewNop()
	}
	p := &ZapLoggerProvider{base: base}
	p.minimumLevel.Store(int32(LogLevelInfo))
	return p
}

func (p *ZapLoggerProvider) CreateLogger(category string) Logger {
	return &zapLogger{provider: p, z: p.base.Named(category), category: category}
}

func (p *ZapLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.minimumLevel.Store(int32(level))
}

// Sync 刷新底层 zap 缓冲
func (p *ZapLoggerProvider) Sync() error {
	return p.base.Sync()
}

type zapLogger struct {
	provider *ZapLoggerProvider
	z        *zap.Logger
	category string
}

func (l *zapLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *zapLogger) Enabled(level LogLevel) bool {
	return level >= LogLevel(l.provider.minimumLevel.Load()) && level < LogLevelNone
}

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}
	if ce := l.z.Check(toZapLevel(level), msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{provider: l.provider, z: l.z.With(toZapFields(fields)...), category: l.category}
}

func (l *zapLogger) WithCategory(category string) Logger {
	return &zapLogger{provider: l.provider, z: l.provider.base.Named(category), category: category}
}

// toZapLevel zap 没有 trace 级别，映射到 debug
func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
