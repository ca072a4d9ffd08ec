package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// LifecycleEvents 管理应用程序的启动与停止钩子
type LifecycleEvents struct {
	mu      sync.Mutex
	onStart []func(context.Context) error
	onStop  []func(context.Context) error
	logger  logging.Logger
}

// NewLifecycle 创建新的生命周期管理器
func NewLifecycle(logger logging.Logger) *LifecycleEvents {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LifecycleEvents{logger: logger}
}

// OnStart 注册启动钩子
func (l *LifecycleEvents) OnStart(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStart = append(l.onStart, fn)
}

// OnStop 注册停止钩子
func (l *LifecycleEvents) OnStop(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStop = append(l.onStop, fn)
}

// Start 按注册顺序执行启动钩子，遇到错误立即返回
func (l *LifecycleEvents) Start(ctx context.Context) error {
	l.mu.Lock()
	hooks := append([]func(context.Context) error{}, l.onStart...)
	l.mu.Unlock()

	for i, fn := range hooks {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("core: start hook %d: %w", i+1, err)
		}
	}
	return nil
}

// Stop 倒序执行停止钩子；出错时记录并继续，返回合并后的错误
func (l *LifecycleEvents) Stop(ctx context.Context) error {
	l.mu.Lock()
	hooks := append([]func(context.Context) error{}, l.onStop...)
	l.mu.Unlock()

	var errs error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			l.logger.Error("Stop hook failed", logging.Field{Key: "hook", Value: i + 1}, logging.Err(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
