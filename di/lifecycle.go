package di

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/gocrud/ioc/logging"
)

// Initializer 属性填充完成后回调
type Initializer interface {
	AfterPropertiesSet() error
}

// DisposableBean 单例销毁时回调
type DisposableBean interface {
	Destroy() error
}

// SingletonsInstantiatedListener 所有非懒加载单例创建完成后回调
type SingletonsInstantiatedListener interface {
	SingletonsInstantiated() error
}

// EagerFactoryBean 预实例化时同时创建产物
type EagerFactoryBean interface {
	FactoryBean
	IsEagerInit() bool
}

// disposableAdapter 汇总一个 bean 的全部销毁动作
type disposableAdapter struct {
	name       string
	bean       any
	method     string
	processors []DestructionAwareProcessor
	f          *Factory
}

// newDisposable 收集 bean 的销毁动作：处理器回调、DisposableBean、销毁方法
func (f *Factory) newDisposable(name string, bean any, def *Definition) *disposableAdapter {
	d := &disposableAdapter{name: name, bean: bean, f: f}
	if !def.Synthetic {
		for _, p := range f.procs.load().destructions {
			if p.RequiresDestruction(bean) {
				d.processors = append(d.processors, p)
			}
		}
	}

	_, disposable := bean.(DisposableBean)
	switch def.DestroyMethod {
	case "":
	case InferDestroyMethod:
		for _, candidate := range []string{"Close", "Shutdown"} {
			if f.lookupMethod(reflect.TypeOf(bean), candidate) != nil {
				d.method = candidate
				break
			}
		}
	default:
		d.method = def.DestroyMethod
	}
	if disposable && d.method == "Destroy" {
		d.method = ""
	}
	return d
}

func (d *disposableAdapter) required() bool {
	_, disposable := d.bean.(DisposableBean)
	return disposable || d.method != "" || len(d.processors) > 0
}

// destroy 执行销毁回调；错误只记录日志，不会中断后续销毁
func (d *disposableAdapter) destroy() {
	log := d.f.logger
	for _, p := range d.processors {
		if err := safeCall(func() error { return p.BeforeDestruction(d.name, d.bean) }); err != nil {
			log.Warn("destruction processor failed", logging.String("bean", d.name),
				logging.String("processor", processorName(p)), logging.Err(err))
		}
	}
	if db, ok := d.bean.(DisposableBean); ok {
		if err := safeCall(db.Destroy); err != nil {
			log.Warn("Destroy failed", logging.String("bean", d.name), logging.Err(err))
		}
	}
	if d.method != "" {
		if err := d.f.invokeNamedMethod(d.bean, d.method); err != nil {
			log.Warn("destroy method failed", logging.String("bean", d.name),
				logging.String("method", d.method), logging.Err(err))
		}
	}
	log.Debug("destroyed bean", logging.String("bean", d.name))
}

// DestroySingleton 销毁单个单例，依赖它的单例先被销毁
func (f *Factory) DestroySingleton(name string) {
	f.destroySingleton(f.canonicalName(name))
}

func (f *Factory) destroySingleton(name string) {
	dependents, disposable := f.singletons.remove(name)
	for _, dep := range dependents {
		f.destroySingleton(dep)
	}
	if disposable != nil {
		disposable.destroy()
	}
}

// DestroySingletons 按完成顺序的逆序销毁全部单例，并清空缓存。
// 期间的 GetBean 返回 ErrFactoryDestroyed。
func (f *Factory) DestroySingletons() {
	f.logger.Debug("destroying singletons")
	f.singletons.setDestroying(true)

	names := f.singletons.names()
	for _, name := range slices.Backward(names) {
		f.destroySingleton(name)
	}

	f.singletons.mu.Lock()
	f.singletons.reset()
	f.singletons.mu.Unlock()
	f.introspection.Clear()
	f.singletons.setDestroying(false)
}

// PreInstantiateSingletons 按注册顺序创建所有非懒加载、非抽象的单例，
// 然后通知 SingletonsInstantiatedListener。
func (f *Factory) PreInstantiateSingletons() error {
	names := f.Registry.Names()
	for _, name := range names {
		def, err := f.mergedDefinition(name)
		if err != nil {
			return err
		}
		if def.Abstract || !def.IsSingleton() || def.Lazy {
			continue
		}
		if !f.isFactoryBean(name) {
			if _, err := f.GetBean(name); err != nil {
				return err
			}
			continue
		}
		raw, err := f.GetBean(FactoryBeanPrefix + name)
		if err != nil {
			return err
		}
		if eager, ok := raw.(EagerFactoryBean); ok && eager.IsEagerInit() {
			if _, err := f.GetBean(name); err != nil {
				return err
			}
		}
	}

	for _, name := range names {
		obj, ok := f.singletons.get(name)
		if !ok {
			continue
		}
		if l, ok := obj.(SingletonsInstantiatedListener); ok {
			if err := safeCall(l.SingletonsInstantiated); err != nil {
				return wrapCreation(name, fmt.Errorf("SingletonsInstantiated: %w", err))
			}
		}
	}
	f.logger.Debug("pre-instantiated singletons", logging.Field{Key: "count", Value: len(names)})
	return nil
}
