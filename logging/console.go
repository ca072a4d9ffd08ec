package logging

import (
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	Output           io.Writer
}

// ConsoleLoggerProvider 控制台日志提供者
type ConsoleLoggerProvider struct {
	formatter    *TextFormatter
	output       io.Writer
	minimumLevel LogLevel
	writeMu      sync.Mutex
	mu           sync.RWMutex
}

// NewConsoleLoggerProvider 创建控制台日志提供者
func NewConsoleLoggerProvider(options ConsoleLoggerOptions) *ConsoleLoggerProvider {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.TimestampFormat == "" {
		options.TimestampFormat = "2006-01-02 15:04:05"
	}
	return &ConsoleLoggerProvider{
		formatter: &TextFormatter{
			IncludeTimestamp: options.IncludeTimestamp,
			TimestampFormat:  options.TimestampFormat,
			ColorOutput:      options.ColorOutput,
		},
		output:       options.Output,
		minimumLevel: LogLevelInfo,
	}
}

func (p *ConsoleLoggerProvider) CreateLogger(category string) Logger {
	return &consoleLogger{provider: p, category: category}
}

func (p *ConsoleLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minimumLevel = level
}

func (p *ConsoleLoggerProvider) level() LogLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minimumLevel
}

// write 同一 provider 的所有 logger 共享输出锁，避免多行交错
func (p *ConsoleLoggerProvider) write(entry *LogEntry) {
	data, err := p.formatter.Format(entry)
	if err != nil {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, _ = p.output.Write(data)
}

// consoleLogger 控制台日志实现
type consoleLogger struct {
	provider *ConsoleLoggerProvider
	category string
	fields   []Field
}

func (l *consoleLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *consoleLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *consoleLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *consoleLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *consoleLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *consoleLogger) Enabled(level LogLevel) bool {
	return level >= l.provider.level() && level < LogLevelNone
}

func (l *consoleLogger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}
	l.provider.write(&LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Message:  msg,
		Fields:   mergeFields(l.fields, fields),
	})
}

func (l *consoleLogger) WithFields(fields ...Field) Logger {
	return &consoleLogger{provider: l.provider, category: l.category, fields: mergeFields(l.fields, fields)}
}

func (l *consoleLogger) WithCategory(category string) Logger {
	return &consoleLogger{provider: l.provider, category: category, fields: l.fields}
}
