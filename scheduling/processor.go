package scheduling

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Task 被调度执行的 bean
type Task interface {
	Run(ctx context.Context) error
}

// Scheduled bean 自己声明调度表达式时实现该接口，优先级低于 WithCron
type Scheduled interface {
	Task
	CronSpec() string
}

// Processor 把带调度表达式的单例 bean 注册到 cron 调度器，同时是一个托管服务：
// Start 启动调度器并阻塞到 ctx 结束，Stop 等待正在执行的任务完成。
// bean 销毁时对应的任务被移除。
type Processor struct {
	factory *di.Factory
	cron    *cron.Cron
	logger  logging.Logger
	opts    options

	mu      sync.RWMutex
	jobs    map[string]cron.EntryID // 任务名称到任务ID的映射
	beans   map[string]any
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool
}

// NewProcessor 创建调度处理器
func NewProcessor(f *di.Factory, opts ...Option) *Processor {
	o := options{location: time.UTC, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	cronOpts := []cron.Option{cron.WithLocation(o.location)}
	// 只在启用时添加 cron 库的日志记录器
	if o.cronLogger {
		cronOpts = append(cronOpts, cron.WithLogger(newCronLogger(o.logger)))
	}
	wrappers := []cron.JobWrapper{cron.Recover(newCronLogger(o.logger))}
	if !o.allowOverlap {
		wrappers = append(wrappers, cron.SkipIfStillRunning(newCronLogger(o.logger)))
	}
	cronOpts = append(cronOpts, cron.WithChain(wrappers...))
	if o.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Processor{
		factory: f,
		cron:    cron.New(cronOpts...),
		logger:  o.logger,
		opts:    o,
		jobs:    make(map[string]cron.EntryID),
		beans:   make(map[string]any),
		runCtx:  runCtx,
		cancel:  cancel,
	}
}

// Order 在代理类处理器之后执行，调度的是最终暴露的 bean
func (p *Processor) Order() int {
	return di.LowestPrecedence - 100
}

// AfterInitialization 实现 di.AfterInitProcessor
func (p *Processor) AfterInitialization(name string, bean any) (any, error) {
	spec, ok := p.specFor(name, bean)
	if !ok {
		return nil, nil
	}
	if single, err := p.factory.IsSingleton(name); err != nil || !single {
		p.logger.Warn("Ignoring schedule on non-singleton bean", logging.String("bean", name))
		return nil, nil
	}
	task, ok := bean.(Task)
	if !ok {
		return nil, fmt.Errorf("scheduling: bean '%s' (%T) declares schedule %q but does not implement Task", name, bean, spec)
	}
	if err := p.AddTask(spec, name, task); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.beans[name] = bean
	p.mu.Unlock()
	return nil, nil
}

// RequiresDestruction 实现 di.DestructionAwareProcessor
func (p *Processor) RequiresDestruction(bean any) bool {
	if bean == nil || !reflect.TypeOf(bean).Comparable() {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, b := range p.beans {
		if b == bean {
			return true
		}
	}
	return false
}

// BeforeDestruction 移除 bean 对应的任务
func (p *Processor) BeforeDestruction(name string, _ any) error {
	p.mu.Lock()
	delete(p.beans, name)
	p.mu.Unlock()
	p.Remove(name)
	return nil
}

func (p *Processor) specFor(name string, bean any) (string, bool) {
	def, err := p.factory.MergedDefinition(name)
	if err == nil {
		if spec, ok := def.Attribute(AttrCron).(string); ok && spec != "" {
			return spec, true
		}
	}
	if s, ok := bean.(Scheduled); ok {
		return s.CronSpec(), true
	}
	return "", false
}

// AddTask 添加定时任务
// spec: cron 表达式，如 "*/5 * * * *" (每5分钟) 或 "@every 1m"
func (p *Processor) AddTask(spec, name string, task Task) error {
	return p.add(spec, name, task.Run)
}

// AddJob 添加任务。handler 可以是 func()、func(context.Context) error，
// 或参数全部从容器按类型解析的任意函数（每次执行时解析），例如：
//
//	p.AddJob("@every 5m", "sync-data", func(svc *DataService, logger logging.Logger) {
//	    svc.Sync()
//	})
func (p *Processor) AddJob(spec, name string, handler any) error {
	switch h := handler.(type) {
	case func():
		return p.add(spec, name, func(context.Context) error { h(); return nil })
	case func(context.Context) error:
		return p.add(spec, name, h)
	}
	run, err := p.injectingRunner(handler)
	if err != nil {
		return fmt.Errorf("scheduling: job '%s': %w", name, err)
	}
	return p.add(spec, name, run)
}

func (p *Processor) add(spec, name string, run func(context.Context) error) error {
	resolved, err := p.resolveSpec(spec)
	if err != nil {
		return fmt.Errorf("scheduling: job '%s': %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.jobs[name]; exists {
		return fmt.Errorf("scheduling: job '%s' already registered", name)
	}

	entryID, err := p.cron.AddFunc(resolved, func() {
		start := time.Now()
		p.logger.Debug("Scheduled job started", logging.String("job", name))
		if err := run(p.runCtx); err != nil {
			p.logger.Error("Scheduled job failed", logging.String("job", name), logging.Err(err))
			return
		}
		p.logger.Debug("Scheduled job completed", logging.String("job", name),
			logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	})
	if err != nil {
		return fmt.Errorf("scheduling: failed to add job '%s' with spec %q: %w", name, resolved, err)
	}

	p.jobs[name] = entryID
	p.logger.Info("Scheduled job registered", logging.String("job", name), logging.String("spec", resolved))
	return nil
}

func (p *Processor) resolveSpec(spec string) (string, error) {
	if p.opts.resolveSpec == nil || !strings.Contains(spec, "${") {
		return spec, nil
	}
	return p.opts.resolveSpec(spec)
}

// injectingRunner 包装处理器，每次执行时从容器解析参数
func (p *Processor) injectingRunner(handler any) (func(context.Context) error, error) {
	hv := reflect.ValueOf(handler)
	ht := hv.Type()
	if ht.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %v", ht.Kind())
	}
	errType := di.TypeOf[error]()
	if ht.NumOut() > 1 || (ht.NumOut() == 1 && ht.Out(0) != errType) {
		return nil, fmt.Errorf("handler must return nothing or error, got %v", ht)
	}
	ctxType := di.TypeOf[context.Context]()

	return func(ctx context.Context) error {
		args := make([]reflect.Value, ht.NumIn())
		for i := range args {
			in := ht.In(i)
			if in == ctxType {
				args[i] = reflect.ValueOf(ctx)
				continue
			}
			resolved, err := p.factory.ResolveDependency(di.Dependency{Type: in})
			if err != nil {
				return fmt.Errorf("resolving parameter %d (%v): %w", i, in, err)
			}
			args[i] = reflect.ValueOf(resolved.Value)
			if !resolved.Present || resolved.Value == nil {
				args[i] = reflect.Zero(in)
			}
		}
		out := hv.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

// Remove 移除定时任务
func (p *Processor) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entryID, exists := p.jobs[name]; exists {
		p.cron.Remove(entryID)
		delete(p.jobs, name)
		p.logger.Info("Scheduled job removed", logging.String("job", name))
	}
}

// Jobs 返回任务名称到下次执行时间的映射；调度器未启动时下次执行时间为零值
func (p *Processor) Jobs() map[string]time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]time.Time, len(p.jobs))
	for name, id := range p.jobs {
		out[name] = p.cron.Entry(id).Next
	}
	return out
}

// Start 实现 hosting.HostedService
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	p.running = true
	count := len(p.jobs)
	p.mu.Unlock()

	p.logger.Info(fmt.Sprintf("Scheduler starting with %d jobs", count))
	p.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop 实现 hosting.HostedService：停止调度并等待执行中的任务
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	running := p.running
	p.running = false
	p.mu.Unlock()
	if !running {
		return nil
	}

	p.logger.Info("Scheduler stopping")
	p.cancel()
	stopCtx := p.cron.Stop()

	// 等待停止完成或 ctx 超时
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enable 创建调度处理器，注册为单例 bean（名称 SchedulerBeanName）并加入处理器链
func Enable(f *di.Factory, opts ...Option) (*Processor, error) {
	p := NewProcessor(f, opts...)
	if err := f.RegisterSingleton(SchedulerBeanName, p); err != nil {
		return nil, err
	}
	if err := f.AddProcessor(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SchedulerBeanName Enable 注册的 bean 名称
const SchedulerBeanName = "scheduler"

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Err(err))
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprintf("%v", keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
