package logging

import "os"

// NewLogger 创建一个默认的控制台 Logger（便于测试使用）
func NewLogger() Logger {
	builder := NewLoggingBuilder()
	builder.AddConsole()
	factory := builder.Build()
	return factory.CreateLogger("default")
}

// NewNopLogger 返回丢弃所有输出的 Logger
func NewNopLogger() Logger {
	return nopLogger{}
}

// NewStderrLogger 创建输出到 stderr、无颜色的 Logger
func NewStderrLogger(category string, level LogLevel) Logger {
	return NewLoggingBuilder().
		SetMinimumLevel(level).
		AddConsole(ConsoleLoggerOptions{IncludeTimestamp: true, Output: os.Stderr}).
		Build().
		CreateLogger(category)
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...Field)         {}
func (nopLogger) Debug(string, ...Field)         {}
func (nopLogger) Info(string, ...Field)          {}
func (nopLogger) Warn(string, ...Field)          {}
func (nopLogger) Error(string, ...Field)         {}
func (nopLogger) Log(LogLevel, string, ...Field) {}
func (nopLogger) Enabled(LogLevel) bool          { return false }
func (n nopLogger) WithFields(...Field) Logger   { return n }
func (n nopLogger) WithCategory(string) Logger   { return n }
