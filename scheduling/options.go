package scheduling

import (
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// AttrCron 定义属性：bean 的调度表达式
const AttrCron = "scheduling.cron"

// WithCron 声明 bean 按 spec 周期执行，bean 必须实现 Task。
// spec 可以包含 ${key:default} 占位符，由 WithSpecResolver 提供的函数解析。
func WithCron(spec string) di.Option {
	return di.WithAttribute(AttrCron, spec)
}

// options 调度器配置选项
type options struct {
	// location 时区设置，默认 UTC
	location *time.Location
	// seconds 是否启用秒级精度（默认分钟级）
	seconds bool
	logger  logging.Logger
	// cronLogger 是否启用 cron 库的内部调度日志（默认 false）
	cronLogger   bool
	resolveSpec  func(string) (string, error)
	allowOverlap bool
}

// Option 配置 Processor
type Option func(*options)

// WithSeconds 启用秒级精度
func WithSeconds() Option {
	return func(o *options) {
		o.seconds = true
	}
}

// WithLocation 设置时区
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() Option {
	return func(o *options) {
		o.cronLogger = true
	}
}

// WithSpecResolver 设置调度表达式的解析函数，例如 config.PlaceholderProcessor.Resolve
func WithSpecResolver(fn func(string) (string, error)) Option {
	return func(o *options) {
		o.resolveSpec = fn
	}
}

// AllowOverlap 允许同一任务的上一次执行未结束时开始下一次（默认跳过）
func AllowOverlap() Option {
	return func(o *options) {
		o.allowOverlap = true
	}
}
