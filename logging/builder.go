package logging

import (
	"maps"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LoggingBuilder 组装 LoggerFactory。
// 除全局级别外，还可以按类别覆盖级别：类别按 "." 分段，取最长匹配的前缀，
// 例如为 "di" 设置的级别同样作用于 "di.Factory"。
type LoggingBuilder struct {
	mu        sync.Mutex
	level     LogLevel
	overrides map[string]LogLevel
	providers []LoggerProvider
}

func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{level: LogLevelInfo, overrides: make(map[string]LogLevel)}
}

// SetMinimumLevel 设置没有类别覆盖时使用的级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	b.level = level
	b.mu.Unlock()
	return b
}

// SetCategoryLevel 为类别及其子类别设置级别
func (b *LoggingBuilder) SetCategoryLevel(category string, level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	b.overrides[category] = level
	b.mu.Unlock()
	return b
}

// SetCategoryLevels 批量设置类别级别，值按 ParseLevel 解析
func (b *LoggingBuilder) SetCategoryLevels(levels map[string]string) *LoggingBuilder {
	for category, level := range levels {
		b.SetCategoryLevel(category, ParseLevel(level))
	}
	return b
}

func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.mu.Lock()
	b.providers = append(b.providers, provider)
	b.mu.Unlock()
	return b
}

// AddConsole 输出到 stdout；传入 options 时完全使用调用方的选项
func (b *LoggingBuilder) AddConsole(options ...ConsoleLoggerOptions) *LoggingBuilder {
	opts := ConsoleLoggerOptions{IncludeTimestamp: true, ColorOutput: true, Output: os.Stdout}
	if len(options) > 0 {
		opts = options[0]
	}
	return b.AddProvider(NewConsoleLoggerProvider(opts))
}

// AddZap 添加 zap 日志；logger 为 nil 时使用 zap.NewProduction
func (b *LoggingBuilder) AddZap(logger *zap.Logger) *LoggingBuilder {
	if logger == nil {
		var err error
		if logger, err = zap.NewProduction(); err != nil {
			logger = zap.NewNop()
		}
	}
	return b.AddProvider(NewZapLoggerProvider(logger))
}

// Build 之后对构建器的修改不影响已返回的工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := &loggerFactory{minimumLevel: b.level, overrides: maps.Clone(b.overrides)}
	for _, p := range b.providers {
		f.AddProvider(p)
	}
	return f
}

// levelFor 返回类别生效的级别
func levelFor(category string, level LogLevel, overrides map[string]LogLevel) LogLevel {
	for name := category; name != ""; {
		if l, ok := overrides[name]; ok {
			return l
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return level
}

// lowestLevel 提供者按最低的级别放行，具体过滤交给组合日志
func lowestLevel(level LogLevel, overrides map[string]LogLevel) LogLevel {
	for _, l := range overrides {
		level = min(level, l)
	}
	return level
}
