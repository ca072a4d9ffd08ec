package di

import (
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// createBean 按定义完成一次完整创建：实例化、提前暴露、填充、能力注入、初始化。
func (f *Factory) createBean(ch *chain, name string, def *Definition) (any, error) {
	ch.push(name)
	defer ch.pop()
	f.markCreated(name)

	pl := f.procs.load()
	if !def.Synthetic {
		for _, p := range pl.instAware {
			bean, err := p.BeforeInstantiation(name, def)
			if err != nil {
				return nil, &BeanInitializationError{Bean: name, Stage: StageInstantiate, Processor: processorName(p), Err: err}
			}
			if bean != nil {
				f.logger.Debug("instantiation short-circuited by processor",
					logging.String("bean", name), logging.String("processor", processorName(p)))
				return f.applyAfterInit(name, bean)
			}
		}
	}

	raw, err := f.instantiate(ch, name, def)
	if err != nil {
		return nil, err
	}

	allowEarly := def.IsSingleton() && f.Settings().AllowCircularReferences
	if allowEarly {
		f.singletons.addEarlyFactory(name, func() (any, error) {
			return f.earlyReference(name, def, raw)
		})
	}

	if err := f.populate(ch, name, def, raw); err != nil {
		return nil, err
	}

	exposed, err := f.initializeBean(name, def, raw)
	if err != nil {
		return nil, err
	}

	if allowEarly {
		if early, ok := f.singletons.earlyReference(name); ok {
			if identical(exposed, raw) {
				exposed = early
			} else {
				return nil, &CircularReferenceError{Bean: name, Chain: ch.path(name),
					Reason: "raw instance was injected into other beans as part of a circular reference, " +
						"but has eventually been wrapped by a post-processor"}
			}
		}
	}

	if def.IsSingleton() {
		if d := f.newDisposable(name, exposed, def); d.required() {
			f.singletons.addDisposable(name, d)
		}
	}

	f.logger.Debug("created bean", logging.String("bean", name),
		logging.String("scope", scopeName(def)),
		logging.Field{Key: "type", Value: fmt.Sprintf("%T", exposed)})
	return exposed, nil
}

func scopeName(def *Definition) string {
	if def.Scope == "" {
		return ScopeSingleton
	}
	return def.Scope
}

// earlyReference 交给 EarlyReferenceProcessor 决定提前暴露的引用
func (f *Factory) earlyReference(name string, def *Definition, raw any) (any, error) {
	exposed := raw
	if def.Synthetic {
		return exposed, nil
	}
	for _, p := range f.procs.load().earlyRef {
		ref, err := p.EarlyReference(name, exposed)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processorName(p), err)
		}
		if ref != nil {
			exposed = ref
		}
	}
	return exposed, nil
}

// initializeBean 能力注入、初始化前处理、初始化方法、初始化后处理
func (f *Factory) initializeBean(name string, def *Definition, bean any) (any, error) {
	if err := f.invokeAware(name, bean); err != nil {
		return nil, err
	}

	current := bean
	if !def.Synthetic {
		for _, p := range f.procs.load().beforeInit {
			next, err := callProcessor(func() (any, error) { return p.BeforeInitialization(name, current) })
			if err != nil {
				return nil, &BeanInitializationError{Bean: name, Stage: StageBeforeInit, Processor: processorName(p), Err: err}
			}
			if next != nil {
				current = next
			}
		}
	}

	if err := f.invokeInitMethods(name, def, current); err != nil {
		return nil, err
	}

	if def.Synthetic {
		return current, nil
	}
	return f.applyAfterInit(name, current)
}

// applyAfterInit 依次执行初始化后处理器
func (f *Factory) applyAfterInit(name string, bean any) (any, error) {
	current := bean
	for _, p := range f.procs.load().afterInit {
		next, err := callProcessor(func() (any, error) { return p.AfterInitialization(name, current) })
		if err != nil {
			return nil, &BeanInitializationError{Bean: name, Stage: StageAfterInit, Processor: processorName(p), Err: err}
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// callProcessor 把处理器中的 panic 转为错误
func callProcessor(fn func() (any, error)) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicError(r)
		}
	}()
	return fn()
}

// invokeInitMethods 先 AfterPropertiesSet，再按声明顺序调用初始化方法
func (f *Factory) invokeInitMethods(name string, def *Definition, bean any) error {
	initializer, isInitializer := bean.(Initializer)
	if isInitializer {
		if err := safeCall(initializer.AfterPropertiesSet); err != nil {
			return &BeanInitializationError{Bean: name, Stage: StageInit, Err: fmt.Errorf("AfterPropertiesSet: %w", err)}
		}
	}
	for _, method := range def.InitMethods {
		if isInitializer && method == "AfterPropertiesSet" {
			continue
		}
		if err := f.invokeNamedMethod(bean, method); err != nil {
			return &BeanInitializationError{Bean: name, Stage: StageInit, Err: fmt.Errorf("init method %s: %w", method, err)}
		}
	}
	return nil
}

// invokeNamedMethod 调用无参方法；支持 func()、func() error、func(context.Context) error
func (f *Factory) invokeNamedMethod(bean any, method string) error {
	m := f.lookupMethod(reflect.TypeOf(bean), method)
	if m == nil {
		return fmt.Errorf("method %s not found on %T", method, bean)
	}
	return m.call(reflect.ValueOf(bean))
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn()
}
