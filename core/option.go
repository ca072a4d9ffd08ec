package core

import (
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Option 配置 ApplicationContext
type Option func(*ApplicationContext)

// WithParent 设置父上下文，子上下文可以看到父上下文的全部 bean
func WithParent(parent *ApplicationContext) Option {
	return func(c *ApplicationContext) {
		c.parent = parent
	}
}

// WithConfiguration 设置配置；未设置时继承父上下文的配置
func WithConfiguration(cfg config.Configuration) Option {
	return func(c *ApplicationContext) {
		c.config = cfg
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(c *ApplicationContext) {
		c.logger = logger
	}
}

// WithSettings 显式设置容器行为开关，优先于配置节 "container"
func WithSettings(s di.Settings) Option {
	return func(c *ApplicationContext) {
		c.settings = &s
	}
}

// WithID 设置上下文 ID，默认为随机 UUID
func WithID(id string) Option {
	return func(c *ApplicationContext) {
		c.id = id
	}
}

// WithDefinitions 添加注册函数，在 Refresh 开始时按顺序执行
func WithDefinitions(fns ...func(f *di.Factory) error) Option {
	return func(c *ApplicationContext) {
		c.definitions = append(c.definitions, fns...)
	}
}

// WithProcessors 添加 bean 处理器；实现 di.DefinitionPostProcessor 的
// 会在任何 bean 创建之前执行
func WithProcessors(procs ...any) Option {
	return func(c *ApplicationContext) {
		c.processors = append(c.processors, procs...)
	}
}

// WithShutdownTimeout 设置 Run 收到退出信号后的关闭超时
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *ApplicationContext) {
		c.shutdownTimeout = timeout
	}
}
