package config

import (
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/di"
)

// Options 绑定并校验过的配置节。配置支持重载时，重载后自动重新绑定；
// 新值校验失败时保留旧值并把错误交给 OnError 回调。
type Options[T any] struct {
	config  Configuration
	section string
	current atomic.Pointer[T]

	mu       sync.Mutex
	onChange []func(T)
	onError  []func(error)
}

// NewOptions 加载配置节
func NewOptions[T any](cfg Configuration, section string) (*Options[T], error) {
	o := &Options[T]{config: cfg, section: section}
	if err := o.reload(); err != nil {
		return nil, err
	}
	if rc, ok := cfg.(ReloadableConfiguration); ok {
		rc.OnReload(func() {
			if err := o.reload(); err != nil {
				o.notifyError(err)
			}
		})
	}
	return o, nil
}

func (o *Options[T]) reload() error {
	v, err := Load[T](o.config, o.section)
	if err != nil {
		return err
	}
	o.current.Store(&v)

	o.mu.Lock()
	callbacks := append([]func(T){}, o.onChange...)
	o.mu.Unlock()
	for _, fn := range callbacks {
		fn(v)
	}
	return nil
}

func (o *Options[T]) notifyError(err error) {
	o.mu.Lock()
	callbacks := append([]func(error){}, o.onError...)
	o.mu.Unlock()
	for _, fn := range callbacks {
		fn(err)
	}
}

// Value 当前配置值
func (o *Options[T]) Value() T {
	return *o.current.Load()
}

// Section 绑定的配置节名称
func (o *Options[T]) Section() string {
	return o.section
}

// OnChange 注册重载成功后的回调
func (o *Options[T]) OnChange(fn func(T)) {
	o.mu.Lock()
	o.onChange = append(o.onChange, fn)
	o.mu.Unlock()
}

// OnError 注册重载失败的回调
func (o *Options[T]) OnError(fn func(error)) {
	o.mu.Lock()
	o.onError = append(o.onError, fn)
	o.mu.Unlock()
}

// RegisterOptions 把 *Options[T] 注册为单例 bean，首次获取时才加载配置节
func RegisterOptions[T any](f *di.Factory, name string, cfg Configuration, section string, opts ...di.Option) error {
	return di.Provide(f, name, func() (*Options[T], error) {
		return NewOptions[T](cfg, section)
	}, opts...)
}

// RegisterSection 把配置节绑定结果 *T 注册为单例 bean
func RegisterSection[T any](f *di.Factory, name string, cfg Configuration, section string, opts ...di.Option) error {
	return di.Provide(f, name, func() (*T, error) {
		v, err := Load[T](cfg, section)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}, opts...)
}
