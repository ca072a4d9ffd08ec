package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gocrud/ioc/logging"
)

// Container 是 bean 消费方看到的容器接口。
type Container interface {
	// GetBean 按名称（或别名）获取 bean；"&name" 返回 FactoryBean 本身
	GetBean(name string) (any, error)
	// GetBeanByType 获取唯一可赋值给 t 的 bean
	GetBeanByType(t reflect.Type) (any, error)
	// ContainsBean 本容器或祖先容器是否包含该名称
	ContainsBean(name string) bool
	IsSingleton(name string) (bool, error)
	IsPrototype(name string) (bool, error)
	// BeanType 不实例化地返回 bean 的类型，无法确定时返回 nil
	BeanType(name string) (reflect.Type, error)
	Aliases(name string) []string
	// NamesForType 返回可赋值给 t 的 bean 名称；allowEagerInit 为 false 时不会实例化任何 bean
	NamesForType(t reflect.Type, includeNonSingletons, allowEagerInit bool) []string
	BeansOfType(t reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error)
}

// FactoryBeanPrefix 名称前缀，表示取 FactoryBean 本身而不是它的产物
const FactoryBeanPrefix = "&"

// Settings 容器行为开关，通常来自配置节 "container"
type Settings struct {
	AllowDefinitionOverriding bool          `json:"allowDefinitionOverriding" yaml:"allowDefinitionOverriding"`
	AllowCircularReferences   bool          `json:"allowCircularReferences" yaml:"allowCircularReferences"`
	CreationWaitTimeout       time.Duration `json:"creationWaitTimeout" yaml:"creationWaitTimeout" validate:"gte=0"`
	ValidateGraph             bool          `json:"validateGraph" yaml:"validateGraph"`
}

// DefaultSettings 允许覆盖，禁止循环引用，跨 goroutine 等待上限 30 秒
func DefaultSettings() Settings {
	return Settings{
		AllowDefinitionOverriding: true,
		CreationWaitTimeout:       30 * time.Second,
	}
}

// Factory 定义注册表 + 依赖解析 + 生命周期引擎。
type Factory struct {
	*Registry

	parent *Factory
	types  *TypeRegistry
	logger logging.Logger

	settingsMu sync.RWMutex
	settings   Settings

	singletons *singletonCache
	procs      *processors

	scopeMu sync.RWMutex
	scopes  map[string]Scope

	resolvableMu sync.RWMutex
	resolvable   []resolvableDependency

	mergedMu sync.Mutex
	merged   map[string]*Definition

	// created 已经用于创建过 bean 的定义名称
	created sync.Map

	awareMu     sync.RWMutex
	customAware []AwareInjector

	envMu sync.RWMutex
	env   Environment

	// introspection 属性与方法的反射缓存，随容器销毁清空
	introspection sync.Map
}

type resolvableDependency struct {
	typ   reflect.Type
	value any
}

// FactoryOption 配置 Factory
type FactoryOption func(*Factory)

// WithParentFactory 设置父容器
func WithParentFactory(parent *Factory) FactoryOption {
	return func(f *Factory) {
		f.parent = parent
	}
}

// WithFactorySettings 设置行为开关
func WithFactorySettings(s Settings) FactoryOption {
	return func(f *Factory) {
		f.settings = s
	}
}

// WithFactoryLogger 设置日志
func WithFactoryLogger(logger logging.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment 设置 EnvironmentAware 使用的环境
func WithEnvironment(env Environment) FactoryOption {
	return func(f *Factory) {
		f.env = env
	}
}

// NewFactory 创建容器。容器把自己注册为 Container 与 *Factory 的可解析依赖，
// 并默认启用 `di` 标签字段注入。
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		logger:     logging.NewNopLogger(),
		settings:   DefaultSettings(),
		singletons: newSingletonCache(),
		procs:      newProcessors(),
		scopes:     make(map[string]Scope),
		merged:     make(map[string]*Definition),
	}
	for _, opt := range opts {
		opt(f)
	}

	var parentTypes *TypeRegistry
	if f.parent != nil {
		parentTypes = f.parent.types
	}
	f.types = NewTypeRegistry(parentTypes)

	f.Registry = NewRegistry(f.logger)
	f.Registry.SetAllowDefinitionOverriding(f.settings.AllowDefinitionOverriding)
	f.Registry.onReset = f.resetDefinition

	f.RegisterResolvableDependency(containerType, f)
	f.RegisterResolvableDependency(TypeOf[*Factory](), f)
	f.procs.add(NewFieldInjectionProcessor())
	return f
}

// Parent 父容器，可能为 nil
func (f *Factory) Parent() *Factory { return f.parent }

// Types 容器拥有的类型注册表
func (f *Factory) Types() *TypeRegistry { return f.types }

// Logger 容器日志
func (f *Factory) Logger() logging.Logger { return f.logger }

// Settings 当前行为开关
func (f *Factory) Settings() Settings {
	f.settingsMu.RLock()
	defer f.settingsMu.RUnlock()
	return f.settings
}

// SetSettings 替换行为开关
func (f *Factory) SetSettings(s Settings) {
	f.settingsMu.Lock()
	f.settings = s
	f.settingsMu.Unlock()
	f.Registry.SetAllowDefinitionOverriding(s.AllowDefinitionOverriding)
}

// Environment 当前环境，本地未设置时使用父容器的
func (f *Factory) Environment() Environment {
	f.envMu.RLock()
	env := f.env
	f.envMu.RUnlock()
	if env == nil && f.parent != nil {
		return f.parent.Environment()
	}
	return env
}

// SetEnvironment 设置环境
func (f *Factory) SetEnvironment(env Environment) {
	f.envMu.Lock()
	defer f.envMu.Unlock()
	f.env = env
}

// AddProcessor 注册后置处理器；p 必须至少实现一个 bean 级钩子
func (f *Factory) AddProcessor(p any) error {
	if p == nil || !isProcessor(p) {
		return fmt.Errorf("di: %T does not implement any post-processor hook", p)
	}
	f.procs.add(p)
	return nil
}

// Processors 按执行顺序返回已注册的后置处理器
func (f *Factory) Processors() []any {
	return append([]any(nil), f.procs.load().all...)
}

// RegisterResolvableDependency 注册可按类型自动装配、但不是 bean 的对象
func (f *Factory) RegisterResolvableDependency(t reflect.Type, value any) {
	f.resolvableMu.Lock()
	defer f.resolvableMu.Unlock()
	for i, r := range f.resolvable {
		if r.typ == t {
			f.resolvable[i].value = value
			return
		}
	}
	f.resolvable = append(f.resolvable, resolvableDependency{typ: t, value: value})
}

// RegisterSingleton 注册外部创建好的单例
func (f *Factory) RegisterSingleton(name string, obj any) error {
	if name == "" {
		return fmt.Errorf("di: singleton name must not be empty")
	}
	if obj == nil {
		return fmt.Errorf("di: singleton '%s' must not be nil", name)
	}
	if err := f.singletons.register(f.canonicalName(name), obj); err != nil {
		return err
	}
	f.logger.Debug("registered singleton", logging.String("bean", name),
		logging.Field{Key: "type", Value: fmt.Sprintf("%T", obj)})
	return nil
}

// SingletonNames 按创建完成顺序返回本容器已缓存的单例名称
func (f *Factory) SingletonNames() []string {
	return f.singletons.names()
}

// UpdateDefinition 修改已注册的定义；一旦有 bean 由它创建即被冻结
func (f *Factory) UpdateDefinition(name string, fn func(*Definition)) error {
	canonical := f.canonicalName(name)
	if _, ok := f.created.Load(canonical); ok {
		return fmt.Errorf("di: cannot update definition '%s': %w", name, ErrDefinitionFrozen)
	}
	def, err := f.Registry.Get(canonical)
	if err != nil {
		return err
	}
	fn(def)
	if def.Parent == "" {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("di: invalid definition '%s': %w", name, err)
		}
	}
	return f.Registry.replace(canonical, def)
}

// IsFrozen 定义是否已被用于创建 bean
func (f *Factory) IsFrozen(name string) bool {
	_, ok := f.created.Load(f.canonicalName(name))
	return ok
}

// resetDefinition 定义变化后清理派生状态
func (f *Factory) resetDefinition(name string) {
	f.mergedMu.Lock()
	clear(f.merged)
	f.mergedMu.Unlock()

	f.created.Delete(name)
	if f.singletons.contains(name) {
		f.destroySingleton(name)
	}
}

// MergedDefinition 返回与 Parent 链合并后的定义副本
func (f *Factory) MergedDefinition(name string) (*Definition, error) {
	def, err := f.mergedDefinition(f.canonicalName(name))
	if err != nil {
		return nil, err
	}
	return def.Clone(), nil
}

func (f *Factory) mergedDefinition(name string) (*Definition, error) {
	return f.mergedDefinitionDepth(name, 0)
}

const maxParentDepth = 64

func (f *Factory) mergedDefinitionDepth(name string, depth int) (*Definition, error) {
	if depth > maxParentDepth {
		return nil, fmt.Errorf("di: parent chain of definition '%s' is too deep or circular", name)
	}

	f.mergedMu.Lock()
	if m, ok := f.merged[name]; ok {
		f.mergedMu.Unlock()
		return m, nil
	}
	f.mergedMu.Unlock()

	def, ok := f.Registry.lookup(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	var m *Definition
	if def.Parent == "" {
		m = def.Clone()
	} else {
		parentName := f.canonicalName(def.Parent)
		var pdef *Definition
		var err error
		switch {
		case parentName != name && f.Registry.Contains(parentName):
			pdef, err = f.mergedDefinitionDepth(parentName, depth+1)
		case f.parent != nil:
			pdef, err = f.parent.MergedDefinition(parentName)
		default:
			err = &NotFoundError{Name: def.Parent}
		}
		if err != nil {
			return nil, fmt.Errorf("di: cannot resolve parent '%s' of definition '%s': %w", def.Parent, name, err)
		}
		m = mergeDefinition(pdef, def)
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("di: invalid definition '%s' after merging with parent: %w", name, err)
		}
	}

	if m.Type == nil && m.TypeName != "" {
		if t, ok := f.types.Lookup(m.TypeName); ok {
			m.Type = t
		}
	}

	f.mergedMu.Lock()
	f.merged[name] = m
	f.mergedMu.Unlock()
	return m, nil
}

// transformedName 去掉 & 前缀并解析别名
func (f *Factory) transformedName(name string) string {
	return f.canonicalName(strings.TrimLeft(name, FactoryBeanPrefix))
}

func isFactoryDereference(name string) bool {
	return strings.HasPrefix(name, FactoryBeanPrefix)
}

// GetBean 按名称获取 bean，本地没有定义时委托父容器
func (f *Factory) GetBean(name string) (any, error) {
	return f.getBean(newChain(), name)
}

// GetTypedBean 按名称获取 bean 并检查可赋值给 t
func (f *Factory) GetTypedBean(name string, t reflect.Type) (any, error) {
	obj, err := f.GetBean(name)
	if err != nil {
		return nil, err
	}
	if t != nil && !reflect.TypeOf(obj).AssignableTo(t) {
		return nil, &TypeMismatchError{Bean: name, Required: t, Actual: reflect.TypeOf(obj)}
	}
	return obj, nil
}

func (f *Factory) getBean(ch *chain, name string) (any, error) {
	beanName := f.transformedName(name)
	if beanName == "" {
		return nil, &NoSuchDefinitionError{Name: name, Reason: "empty bean name"}
	}

	if obj, ok := f.singletons.get(beanName); ok {
		return f.objectForInstance(ch, obj, name, beanName)
	}

	def, err := f.mergedDefinition(beanName)
	if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Name != beanName {
			return nil, wrapCreation(beanName, err)
		}
		if f.parent != nil {
			return f.parent.getBean(ch, name)
		}
		return nil, &NoSuchDefinitionError{Name: name}
	}
	if def.Abstract {
		return nil, wrapCreation(beanName, ErrAbstractDefinition)
	}

	for _, dep := range def.DependsOn {
		depName := f.transformedName(dep)
		if f.singletons.isDependent(beanName, depName) {
			return nil, wrapCreation(beanName, &CircularReferenceError{Bean: beanName,
				Chain: []string{beanName, depName}, Reason: "circular depends-on relationship"})
		}
		f.singletons.registerDependent(depName, beanName)
		if _, err := f.getBean(ch, dep); err != nil {
			return nil, wrapCreation(beanName, fmt.Errorf("depends-on '%s': %w", dep, err))
		}
	}

	var obj any
	switch {
	case def.IsSingleton():
		owned := false
		obj, err = f.singletons.getOrCreate(beanName, ch, f.Settings().CreationWaitTimeout, func() (any, error) {
			owned = true
			return f.createBean(ch, beanName, def)
		})
		if err != nil && owned {
			// 提前引用可能已被其它单例持有，连同这些依赖方一起移除
			f.destroySingleton(beanName)
		}
	case def.IsPrototype():
		if ch.contains(beanName) {
			return nil, &CircularReferenceError{Bean: beanName, Chain: ch.path(beanName),
				Reason: "prototype bean is already in creation"}
		}
		obj, err = f.createBean(ch, beanName, def)
	default:
		scope, ok := f.RegisteredScope(def.Scope)
		if !ok {
			return nil, wrapCreation(beanName, fmt.Errorf("no scope registered for scope name '%s'", def.Scope))
		}
		if ch.contains(beanName) {
			return nil, &CircularReferenceError{Bean: beanName, Chain: ch.path(beanName),
				Reason: fmt.Sprintf("scoped bean is already in creation in scope '%s'", def.Scope)}
		}
		release, gerr := f.singletons.guard(def.Scope+"/"+beanName, beanName, ch, f.Settings().CreationWaitTimeout,
			fmt.Sprintf("scoped bean is already in creation in scope '%s'", def.Scope))
		if gerr != nil {
			return nil, wrapCreation(beanName, gerr)
		}
		obj, err = func() (any, error) {
			defer release()
			return scope.Get(beanName, func() (any, error) {
				bean, err := f.createBean(ch, beanName, def)
				if err != nil {
					return nil, err
				}
				if d := f.newDisposable(beanName, bean, def); d.required() {
					scope.RegisterDestructionCallback(beanName, d.destroy)
				}
				return bean, nil
			})
		}()
	}
	if err != nil {
		return nil, wrapCreation(beanName, err)
	}
	return f.objectForInstance(ch, obj, name, beanName)
}

// ContainsBean 本容器（定义或单例）或祖先容器是否包含该名称
func (f *Factory) ContainsBean(name string) bool {
	if f.containsLocalBean(name) {
		return true
	}
	return f.parent != nil && f.parent.ContainsBean(name)
}

// ContainsLocalBean 只看本容器
func (f *Factory) ContainsLocalBean(name string) bool {
	return f.containsLocalBean(name)
}

func (f *Factory) containsLocalBean(name string) bool {
	beanName := f.transformedName(name)
	if f.singletons.contains(beanName) || f.Registry.Contains(beanName) {
		return !isFactoryDereference(name) || f.isFactoryBean(beanName)
	}
	return false
}

// IsSingleton 判断名称对应的 bean 是否为单例
func (f *Factory) IsSingleton(name string) (bool, error) {
	beanName := f.transformedName(name)
	if obj, ok := f.singletons.get(beanName); ok {
		if fb, isFB := obj.(FactoryBean); isFB && !isFactoryDereference(name) {
			return fb.IsSingleton(), nil
		}
		return true, nil
	}
	def, err := f.mergedDefinition(beanName)
	if err != nil {
		if f.parent != nil && !f.Registry.Contains(beanName) {
			return f.parent.IsSingleton(name)
		}
		return false, &NoSuchDefinitionError{Name: name}
	}
	if !def.IsSingleton() {
		return false, nil
	}
	if f.isFactoryBean(beanName) && !isFactoryDereference(name) {
		fb, err := f.GetBean(FactoryBeanPrefix + beanName)
		if err != nil {
			return false, err
		}
		return fb.(FactoryBean).IsSingleton(), nil
	}
	return true, nil
}

// IsPrototype 判断名称对应的 bean 是否每次请求都新建
func (f *Factory) IsPrototype(name string) (bool, error) {
	beanName := f.transformedName(name)
	if f.singletons.contains(beanName) {
		single, err := f.IsSingleton(name)
		return !single, err
	}
	def, err := f.mergedDefinition(beanName)
	if err != nil {
		if f.parent != nil && !f.Registry.Contains(beanName) {
			return f.parent.IsPrototype(name)
		}
		return false, &NoSuchDefinitionError{Name: name}
	}
	if def.IsPrototype() {
		return true, nil
	}
	if f.isFactoryBean(beanName) && !isFactoryDereference(name) {
		single, err := f.IsSingleton(name)
		return !single, err
	}
	return false, nil
}

// BeanType 返回 bean 的类型而不实例化；FactoryBean 返回其产物类型（未知时为 nil）
func (f *Factory) BeanType(name string) (reflect.Type, error) {
	beanName := f.transformedName(name)
	if obj, ok := f.singletons.get(beanName); ok {
		if fb, isFB := obj.(FactoryBean); isFB && !isFactoryDereference(name) {
			return fb.ObjectType(), nil
		}
		return reflect.TypeOf(obj), nil
	}
	def, err := f.mergedDefinition(beanName)
	if err != nil {
		if f.parent != nil && !f.Registry.Contains(beanName) {
			return f.parent.BeanType(name)
		}
		return nil, &NoSuchDefinitionError{Name: name}
	}
	t := f.predictType(beanName, def)
	if t != nil && t.Implements(factoryBeanType) && !isFactoryDereference(name) {
		if ot, ok := def.Attribute(AttrObjectType).(reflect.Type); ok {
			return ot, nil
		}
		return nil, nil
	}
	return t, nil
}

// Aliases 返回名称的所有别名；本地没有时查父容器
func (f *Factory) Aliases(name string) []string {
	if !f.containsLocalBean(name) && !f.Registry.IsAlias(name) && f.parent != nil {
		return f.parent.Aliases(name)
	}
	return f.Registry.Aliases(strings.TrimLeft(name, FactoryBeanPrefix))
}

// markCreated 冻结定义
func (f *Factory) markCreated(name string) {
	f.created.Store(name, struct{}{})
}

// panicError 把构造或回调中的 panic 转为错误
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
