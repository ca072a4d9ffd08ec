package di

import "reflect"

// Option 配置定义。
type Option func(*Definition)

// WithScope 设置作用域名称。
func WithScope(scope string) Option {
	return func(d *Definition) {
		d.Scope = scope
	}
}

// WithSingleton 将作用域设置为 singleton（默认）。
func WithSingleton() Option {
	return WithScope(ScopeSingleton)
}

// WithPrototype 将作用域设置为 prototype。
func WithPrototype() Option {
	return WithScope(ScopePrototype)
}

// WithType 设置目标类型。
func WithType(t reflect.Type) Option {
	return func(d *Definition) {
		d.Type = t
	}
}

// WithTypeName 设置类型名，创建时通过 TypeRegistry 解析。
func WithTypeName(name string) Option {
	return func(d *Definition) {
		d.TypeName = name
	}
}

// Use 指定目标类型为 T。
func Use[T any]() Option {
	return WithType(TypeOf[T]())
}

// WithConstructor 添加候选构造函数。
// 构造函数可以接受参数，这些参数将被注入；返回 (T) 或 (T, error)。
func WithConstructor(fns ...any) Option {
	return func(d *Definition) {
		d.Constructors = append(d.Constructors, fns...)
	}
}

// WithSupplier 使用无参 supplier 创建实例。
func WithSupplier(fn func() (any, error)) Option {
	return func(d *Definition) {
		d.Supplier = fn
	}
}

// WithFactoryMethod 通过名为 factoryBean 的 bean 上的方法 method 创建实例。
func WithFactoryMethod(factoryBean, method string) Option {
	return func(d *Definition) {
		d.FactoryBean = factoryBean
		d.FactoryMethod = method
	}
}

// WithArgs 设置构造参数；未覆盖的参数按类型自动装配。
func WithArgs(args ...Arg) Option {
	return func(d *Definition) {
		d.Args = append(d.Args, args...)
	}
}

// WithProperty 添加属性赋值。v 为 Arg 时按其来源解析，否则视为显式值。
func WithProperty(name string, v any) Option {
	return func(d *Definition) {
		arg, ok := v.(Arg)
		if !ok {
			arg = Value(v)
		}
		d.Properties = append(d.Properties, Property{Name: name, Arg: arg})
	}
}

// WithInitMethods 追加初始化方法名，按声明顺序调用。
func WithInitMethods(methods ...string) Option {
	return func(d *Definition) {
		d.InitMethods = append(d.InitMethods, methods...)
	}
}

// WithDestroyMethod 设置销毁方法名，可用 InferDestroyMethod。
func WithDestroyMethod(method string) Option {
	return func(d *Definition) {
		d.DestroyMethod = method
	}
}

// WithDependsOn 声明必须先创建的 bean。
func WithDependsOn(names ...string) Option {
	return func(d *Definition) {
		d.DependsOn = append(d.DependsOn, names...)
	}
}

// WithLazy 延迟到首次请求时创建。
func WithLazy() Option {
	return func(d *Definition) {
		d.Lazy = true
	}
}

// WithPrimary 多个候选时优先选择。
func WithPrimary() Option {
	return func(d *Definition) {
		d.Primary = true
	}
}

// WithPriority 设置优先级，数值越小越优先。
func WithPriority(p int) Option {
	return func(d *Definition) {
		d.Priority = &p
	}
}

// WithRole 设置角色。
func WithRole(role Role) Option {
	return func(d *Definition) {
		d.Role = role
	}
}

// WithAbstract 标记为模板定义。
func WithAbstract() Option {
	return func(d *Definition) {
		d.Abstract = true
	}
}

// WithSynthetic 标记为合成定义，跳过实例化与初始化后置处理。
func WithSynthetic() Option {
	return func(d *Definition) {
		d.Synthetic = true
	}
}

// WithParent 以 parent 定义为模板。
func WithParent(parent string) Option {
	return func(d *Definition) {
		d.Parent = parent
	}
}

// WithAttribute 设置属性。
func WithAttribute(key string, value any) Option {
	return func(d *Definition) {
		d.SetAttribute(key, value)
	}
}

// WithObjectType 声明 FactoryBean 或 Supplier 的产出类型。
func WithObjectType(t reflect.Type) Option {
	return WithAttribute(AttrObjectType, t)
}

// WithDescription 设置描述。
func WithDescription(desc string) Option {
	return func(d *Definition) {
		d.Description = desc
	}
}
