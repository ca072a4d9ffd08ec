package logging

import (
	"sync"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	// LogLevelNone 关闭所有输出
	LogLevelNone
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 将字符串解析为日志级别，无法识别时返回 LogLevelInfo
func ParseLevel(s string) LogLevel {
	switch s {
	case "trace", "TRACE":
		return LogLevelTrace
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN", "warning":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	case "none", "off", "NONE":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// String 构造字符串字段
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Err 构造 error 字段，key 固定为 "error"
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger 日志接口
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	Enabled(level LogLevel) bool
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerFactory 日志工厂接口
type LoggerFactory interface {
	CreateLogger(category string) Logger
	AddProvider(provider LoggerProvider)
	SetMinimumLevel(level LogLevel)
}

// LoggerProvider 日志提供者接口
type LoggerProvider interface {
	CreateLogger(category string) Logger
	SetMinimumLevel(level LogLevel)
}

// loggerFactory 日志工厂实现
type loggerFactory struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
	overrides    map[string]LogLevel
	mu           sync.RWMutex
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	f.mu.RLock()
	defer f.mu.RUnlock()

	loggers := make([]Logger, 0, len(f.providers))
	for _, provider := range f.providers {
		loggers = append(loggers, provider.CreateLogger(category))
	}

	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: levelFor(category, f.minimumLevel, f.overrides),
		category:     category,
		levels:       f.levelFor,
	}
}

func (f *loggerFactory) levelFor(category string) LogLevel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return levelFor(category, f.minimumLevel, f.overrides)
}

func (f *loggerFactory) AddProvider(provider LoggerProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	provider.SetMinimumLevel(lowestLevel(f.minimumLevel, f.overrides))
	f.providers = append(f.providers, provider)
}

// SetMinimumLevel 只改变全局级别，类别覆盖保持不变
func (f *loggerFactory) SetMinimumLevel(level LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimumLevel = level
	for _, provider := range f.providers {
		provider.SetMinimumLevel(lowestLevel(level, f.overrides))
	}
}

// compositeLogger 组合日志记录器（将日志发送到多个提供者）
type compositeLogger struct {
	loggers      []Logger
	minimumLevel LogLevel
	category     string
	fields       []Field
	levels       func(category string) LogLevel
}

// NewCompositeLogger 创建组合日志记录器
func NewCompositeLogger(loggers []Logger, minimumLevel LogLevel, category string) Logger {
	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: minimumLevel,
		category:     category,
	}
}

func (l *compositeLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *compositeLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *compositeLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *compositeLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *compositeLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *compositeLogger) Enabled(level LogLevel) bool {
	return level >= l.minimumLevel && level < LogLevelNone
}

func (l *compositeLogger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}

	all := mergeFields(l.fields, fields)
	for _, logger := range l.loggers {
		logger.Log(level, msg, all...)
	}
}

func (l *compositeLogger) WithFields(fields ...Field) Logger {
	return &compositeLogger{
		loggers:      l.loggers,
		minimumLevel: l.minimumLevel,
		category:     l.category,
		fields:       mergeFields(l.fields, fields),
		levels:       l.levels,
	}
}

func (l *compositeLogger) WithCategory(category string) Logger {
	loggers := make([]Logger, 0, len(l.loggers))
	for _, logger := range l.loggers {
		loggers = append(loggers, logger.WithCategory(category))
	}
	level := l.minimumLevel
	if l.levels != nil {
		level = l.levels(category)
	}
	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: level,
		category:     category,
		fields:       l.fields,
		levels:       l.levels,
	}
}

// mergeFields 总是分配新切片，避免 append 复用底层数组导致字段串扰
func mergeFields(base, extra []Field) []Field {
	if len(extra) == 0 {
		return base
	}
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
