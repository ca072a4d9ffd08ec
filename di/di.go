package di

import (
	"fmt"
	"reflect"
)

// Register 注册类型 T 的定义，默认零值构造（*Struct）并按 `di` 标签注入字段。
//
//	di.Register[*UserService](f, "userService", di.WithPrimary())
func Register[T any](f *Factory, name string, opts ...Option) error {
	def := NewDefinition(append([]Option{WithType(TypeOf[T]())}, opts...)...)
	return f.Register(name, def)
}

// Provide 注册构造函数，bean 类型为构造函数的第一个返回值。
// 构造函数签名为 func(...) T 或 func(...) (T, error)，参数按类型自动装配。
func Provide(f *Factory, name string, ctor any, opts ...Option) error {
	ft := reflect.TypeOf(ctor)
	if ft == nil || ft.Kind() != reflect.Func {
		return fmt.Errorf("di: constructor for '%s' must be a function, got %T", name, ctor)
	}
	if err := checkReturns(ft); err != nil {
		return fmt.Errorf("di: constructor for '%s': %w", name, err)
	}
	def := NewDefinition(append([]Option{WithType(ft.Out(0)), WithConstructor(ctor)}, opts...)...)
	return f.Register(name, def)
}

// Instance 注册已创建的单例，等价于 RegisterSingleton
func Instance[T any](f *Factory, name string, v T) error {
	return f.RegisterSingleton(name, v)
}

// Resolve 按类型获取唯一的 T
func Resolve[T any](c Container) (T, error) {
	var zero T
	obj, err := c.GetBeanByType(TypeOf[T]())
	if err != nil {
		return zero, err
	}
	return cast[T]("", obj)
}

// ResolveNamed 按名称获取 bean 并断言为 T
func ResolveNamed[T any](c Container, name string) (T, error) {
	var zero T
	obj, err := c.GetBean(name)
	if err != nil {
		return zero, err
	}
	return cast[T](name, obj)
}

// MustResolve 按类型获取 T，失败时 panic
func MustResolve[T any](c Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// ResolveAll 返回所有可赋值给 T 的 bean，键为 bean 名称
func ResolveAll[T any](c Container) (map[string]T, error) {
	beans, err := c.BeansOfType(TypeOf[T](), true, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(beans))
	for name, obj := range beans {
		v, err := cast[T](name, obj)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func cast[T any](name string, obj any) (T, error) {
	v, ok := obj.(T)
	if !ok {
		var zero T
		return zero, &TypeMismatchError{Bean: name, Required: TypeOf[T](), Actual: reflect.TypeOf(obj)}
	}
	return v, nil
}
