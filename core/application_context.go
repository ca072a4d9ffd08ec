package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

// State 上下文状态
type State int32

const (
	StateCreated State = iota
	StateRefreshing
	StateActive
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRefreshing:
		return "refreshing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ApplicationContextAware 需要拿到所在上下文的 bean 实现该接口
type ApplicationContextAware interface {
	SetApplicationContext(ctx *ApplicationContext)
}

var processorTypes = []reflect.Type{
	di.TypeOf[di.InstantiationAwareProcessor](),
	di.TypeOf[di.PropertyProcessor](),
	di.TypeOf[di.BeforeInitProcessor](),
	di.TypeOf[di.AfterInitProcessor](),
	di.TypeOf[di.EarlyReferenceProcessor](),
	di.TypeOf[di.DestructionAwareProcessor](),
}

// ApplicationContext 在 di.Factory 之上管理一次完整的启动与关闭：
// 定义处理器、bean 处理器、单例预实例化、托管服务与生命周期钩子。
type ApplicationContext struct {
	*di.Factory

	id       string
	parent   *ApplicationContext
	config   config.Configuration
	logger   logging.Logger
	settings *di.Settings

	definitions     []func(f *di.Factory) error
	processors      []any
	shutdownTimeout time.Duration

	lifecycle *LifecycleEvents
	hosted    *hosting.HostedServiceManager

	state       atomic.Int32
	closeOnce   sync.Once
	closeErr    error
	cancel      context.CancelFunc
	serviceErrs <-chan error
	startedAt   time.Time
}

// NewApplicationContext 创建上下文。容器行为开关依次取自 WithSettings、
// 配置节 "container"、默认值。
func NewApplicationContext(opts ...Option) (*ApplicationContext, error) {
	c := &ApplicationContext{shutdownTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}

	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.parent != nil {
		if c.config == nil {
			c.config = c.parent.config
		}
		if c.logger == nil {
			c.logger = c.parent.logger
		}
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}

	settings, err := c.resolveSettings()
	if err != nil {
		return nil, err
	}

	factoryOpts := []di.FactoryOption{
		di.WithFactorySettings(settings),
		di.WithFactoryLogger(c.logger.WithCategory("di.Factory")),
	}
	if c.parent != nil {
		factoryOpts = append(factoryOpts, di.WithParentFactory(c.parent.Factory))
	}
	if c.config != nil {
		factoryOpts = append(factoryOpts, di.WithEnvironment(c.config))
	}
	c.Factory = di.NewFactory(factoryOpts...)

	c.lifecycle = NewLifecycle(c.logger.WithCategory("core.Lifecycle"))
	c.hosted = hosting.NewHostedServiceManager(c.logger.WithCategory("hosting"))
	c.logger = c.logger.WithCategory("core.ApplicationContext").WithFields(logging.String("context", c.id))

	c.RegisterResolvableDependency(di.TypeOf[*ApplicationContext](), c)
	c.RegisterResolvableDependency(di.TypeOf[*LifecycleEvents](), c.lifecycle)
	c.RegisterResolvableDependency(di.TypeOf[logging.Logger](), c.logger)
	if c.config != nil {
		c.RegisterResolvableDependency(di.TypeOf[config.Configuration](), c.config)
	}
	c.AddAwareInjector(func(_ string, bean any) error {
		if aware, ok := bean.(ApplicationContextAware); ok {
			aware.SetApplicationContext(c)
		}
		return nil
	})
	return c, nil
}

func (c *ApplicationContext) resolveSettings() (di.Settings, error) {
	if c.settings != nil {
		if err := config.Validate(*c.settings); err != nil {
			return di.Settings{}, fmt.Errorf("core: invalid container settings: %w", err)
		}
		return *c.settings, nil
	}
	return LoadSettings(c.config)
}

// ID 上下文 ID
func (c *ApplicationContext) ID() string { return c.id }

// ParentContext 父上下文，可能为 nil
func (c *ApplicationContext) ParentContext() *ApplicationContext { return c.parent }

// Configuration 配置，可能为 nil
func (c *ApplicationContext) Configuration() config.Configuration { return c.config }

// Logger 上下文日志
func (c *ApplicationContext) Logger() logging.Logger { return c.logger }

// Lifecycle 启动与停止钩子
func (c *ApplicationContext) Lifecycle() *LifecycleEvents { return c.lifecycle }

// State 当前状态
func (c *ApplicationContext) State() State { return State(c.state.Load()) }

// Errors 托管服务异常退出时的错误，Refresh 之前为 nil 通道
func (c *ApplicationContext) Errors() <-chan error { return c.serviceErrs }

// Refresh 完成启动：执行注册函数与定义处理器，注册处理器 bean，
// 可选地校验依赖图，预实例化非延迟单例，然后启动托管服务与 OnStart 钩子。
// 任何一步失败都会销毁已创建的单例，上下文进入 StateFailed。
func (c *ApplicationContext) Refresh(ctx context.Context) (err error) {
	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateRefreshing)) {
		return fmt.Errorf("core: context %s cannot be refreshed in state %s", c.id, c.State())
	}
	c.startedAt = time.Now()
	c.logger.Info("Refreshing application context")

	hooksStarted := false
	defer func() {
		if err == nil {
			return
		}
		c.state.Store(int32(StateFailed))
		c.logger.Error("Application context refresh failed", logging.Err(err))
		if c.cancel != nil {
			c.cancel()
		}
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.shutdownTimeout)
		defer cancel()
		if hooksStarted {
			// 部分启动钩子已经执行，停止钩子与 Close 一样全部倒序执行
			if stopErr := c.lifecycle.Stop(stopCtx); stopErr != nil {
				err = multierr.Append(err, stopErr)
			}
		}
		if stopErr := c.hosted.StopAll(stopCtx); stopErr != nil {
			err = multierr.Append(err, stopErr)
		}
		c.DestroySingletons()
	}()

	for i, fn := range c.definitions {
		if err := fn(c.Factory); err != nil {
			return fmt.Errorf("core: registering definitions (%d): %w", i+1, err)
		}
	}
	if err := c.invokeDefinitionPostProcessors(); err != nil {
		return err
	}
	if err := c.registerProcessors(); err != nil {
		return err
	}
	if c.Settings().ValidateGraph {
		if err := c.ValidateGraph(); err != nil {
			return err
		}
	}
	if err := c.PreInstantiateSingletons(); err != nil {
		return err
	}

	if err := c.hosted.Discover(c.Factory); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.serviceErrs = c.hosted.StartAll(runCtx)

	hooksStarted = true
	if err := c.lifecycle.Start(ctx); err != nil {
		return err
	}

	c.state.Store(int32(StateActive))
	c.logger.Info("Application context refreshed",
		logging.Field{Key: "definitions", Value: c.Count()},
		logging.Field{Key: "hostedServices", Value: c.hosted.Len()},
		logging.Field{Key: "elapsed", Value: time.Since(c.startedAt).String()})
	return nil
}

// invokeDefinitionPostProcessors 先执行通过选项传入的定义处理器，再执行注册为 bean 的。
// 处理器注册的新定义如果也是定义处理器，会在下一轮执行。
func (c *ApplicationContext) invokeDefinitionPostProcessors() error {
	var programmatic []di.DefinitionPostProcessor
	for _, p := range c.processors {
		if dpp, ok := p.(di.DefinitionPostProcessor); ok {
			programmatic = append(programmatic, dpp)
		}
	}
	if err := c.runDefinitionPostProcessors(programmatic, nil); err != nil {
		return err
	}

	invoked := make(map[string]bool)
	for {
		var pending []di.DefinitionPostProcessor
		var names []string
		for _, name := range c.NamesForType(di.TypeOf[di.DefinitionPostProcessor](), true, false) {
			if invoked[name] {
				continue
			}
			invoked[name] = true
			obj, err := c.GetBean(name)
			if err != nil {
				return err
			}
			pending = append(pending, obj.(di.DefinitionPostProcessor))
			names = append(names, name)
		}
		if len(pending) == 0 {
			return nil
		}
		if err := c.runDefinitionPostProcessors(pending, names); err != nil {
			return err
		}
	}
}

func (c *ApplicationContext) runDefinitionPostProcessors(procs []di.DefinitionPostProcessor, names []string) error {
	idx := make([]int, len(procs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return compareOrder(orderOf(procs[a]), orderOf(procs[b]))
	})
	for _, i := range idx {
		label := fmt.Sprintf("%T", procs[i])
		if names != nil {
			label = names[i]
		}
		c.logger.Debug("Invoking definition post-processor", logging.String("processor", label))
		if err := procs[i].PostProcessDefinitions(c.Factory); err != nil {
			return fmt.Errorf("core: definition post-processor %s: %w", label, err)
		}
	}
	return nil
}

// registerProcessors 注册选项传入的处理器，然后按注册顺序创建并注册处理器 bean
func (c *ApplicationContext) registerProcessors() error {
	var procs []any
	for _, p := range c.processors {
		if isBeanProcessor(p) {
			procs = append(procs, p)
		}
	}

	candidates := make(map[string]bool)
	for _, t := range processorTypes {
		for _, name := range c.NamesForType(t, true, false) {
			candidates[name] = true
		}
	}
	for _, name := range c.Names() {
		if !candidates[name] {
			continue
		}
		obj, err := c.GetBean(name)
		if err != nil {
			return fmt.Errorf("core: creating processor bean '%s': %w", name, err)
		}
		procs = append(procs, obj)
	}

	slices.SortStableFunc(procs, func(a, b any) int {
		return compareOrder(orderOf(a), orderOf(b))
	})
	for _, p := range procs {
		if err := c.AddProcessor(p); err != nil {
			return err
		}
	}
	return nil
}

// Close 停止钩子（逆序）、托管服务、销毁单例。可以重复调用，只执行一次。
func (c *ApplicationContext) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.logger.Info("Closing application context")
		var errs error
		if c.State() == StateActive {
			errs = multierr.Append(errs, c.lifecycle.Stop(ctx))
		}
		if c.cancel != nil {
			c.cancel()
		}
		errs = multierr.Append(errs, c.hosted.StopAll(ctx))
		errs = multierr.Append(errs, c.hosted.Wait(ctx))
		c.DestroySingletons()
		c.state.Store(int32(StateClosed))
		c.closeErr = errs
		c.logger.Info("Application context closed")
	})
	return c.closeErr
}

// Run 启动上下文并阻塞，直到 ctx 结束、收到 SIGINT/SIGTERM 或托管服务失败，然后关闭。
func (c *ApplicationContext) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Refresh(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("Shutdown requested")
	case err := <-c.Errors():
		c.logger.Error("Hosted service failed, stopping application", logging.Err(err))
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()
	return multierr.Append(runErr, c.Close(shutdownCtx))
}

func isBeanProcessor(p any) bool {
	for _, t := range processorTypes {
		if reflect.TypeOf(p).Implements(t) {
			return true
		}
	}
	return false
}

func orderOf(p any) int {
	if o, ok := p.(di.Ordered); ok {
		return o.Order()
	}
	return di.LowestPrecedence
}

func compareOrder(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
