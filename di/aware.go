package di

// NameAware 需要知道自己在容器中的名称
type NameAware interface {
	SetBeanName(name string)
}

// ContainerAware 需要访问所属容器
type ContainerAware interface {
	SetContainer(c Container)
}

// TypeRegistryAware 需要访问容器的类型注册表
type TypeRegistryAware interface {
	SetTypeRegistry(r *TypeRegistry)
}

// Environment 配置环境的最小视图
type Environment interface {
	Get(key string) string
	GetWithDefault(key, defaultValue string) string
}

// EnvironmentAware 需要访问配置环境
type EnvironmentAware interface {
	SetEnvironment(env Environment)
}

// AwareInjector 能力注入函数；bean 不具备该能力时直接返回 nil
type AwareInjector func(name string, bean any) error

// awareInjectors 返回内置注入器与自定义注入器，按顺序执行
func (f *Factory) awareInjectors() []AwareInjector {
	builtin := []AwareInjector{
		func(name string, bean any) error {
			if v, ok := bean.(NameAware); ok {
				v.SetBeanName(name)
			}
			return nil
		},
		func(_ string, bean any) error {
			if v, ok := bean.(TypeRegistryAware); ok {
				v.SetTypeRegistry(f.types)
			}
			return nil
		},
		func(_ string, bean any) error {
			if v, ok := bean.(ContainerAware); ok {
				v.SetContainer(f)
			}
			return nil
		},
		func(_ string, bean any) error {
			v, ok := bean.(EnvironmentAware)
			if !ok {
				return nil
			}
			env := f.Environment()
			if env == nil {
				return errNoEnvironment
			}
			v.SetEnvironment(env)
			return nil
		},
	}

	f.awareMu.RLock()
	defer f.awareMu.RUnlock()
	return append(builtin, f.customAware...)
}

// AddAwareInjector 注册自定义能力注入器，在内置注入器之后执行
func (f *Factory) AddAwareInjector(inj AwareInjector) {
	f.awareMu.Lock()
	defer f.awareMu.Unlock()
	f.customAware = append(f.customAware, inj)
}

// invokeAware 依次执行能力注入
func (f *Factory) invokeAware(name string, bean any) error {
	for _, inj := range f.awareInjectors() {
		if err := inj(name, bean); err != nil {
			return &BeanInitializationError{Bean: name, Stage: StageAware, Err: err}
		}
	}
	return nil
}
