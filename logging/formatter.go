package logging

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Formatter 日志格式化接口
type Formatter interface {
	// Format 格式化日志条目
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry 日志条目
type LogEntry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// TextFormatter 文本格式化器
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
	}
}

// Format 输出形如 `2006-01-02 15:04:05 INFO  [di.Factory] msg bean=repo error="..."`。
// 字段按 logfmt 书写，含空格、引号或等号的值加引号。
func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	if f.IncludeTimestamp {
		buf.WriteString(entry.Time.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}
	level := fmt.Sprintf("%-5s", entry.Level.String())
	if f.ColorOutput {
		level = colorize(entry.Level, level)
	}
	buf.WriteString(level)
	if entry.Category != "" {
		buf.WriteString(" [" + entry.Category + "]")
	}
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		buf.WriteByte(' ')
		buf.WriteString(field.Key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(field.Value))
	}
	buf.WriteByte('\n')

	// buf 会被归还，必须复制
	return bytes.Clone(buf.Bytes()), nil
}

func formatValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		s = x
	case error:
		s = x.Error()
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// colorize 为日志级别添加颜色
func colorize(level LogLevel, text string) string {
	const reset = "\033[0m"
	var color string
	switch level {
	case LogLevelTrace:
		color = "\033[90m"
	case LogLevelDebug:
		color = "\033[36m"
	case LogLevelInfo:
		color = "\033[32m"
	case LogLevelWarn:
		color = "\033[33m"
	case LogLevelError:
		color = "\033[31m"
	default:
		return text
	}
	return color + text + reset
}
