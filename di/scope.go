package di

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/logging"
)

// Scope 自定义作用域。
// 容器把创建函数交给作用域，由作用域决定复用还是新建。
type Scope interface {
	// Get 返回作用域内名为 name 的实例，不存在时调用 create 创建
	Get(name string, create func() (any, error)) (any, error)
	// Remove 从作用域中移除实例，同时丢弃其销毁回调（不执行）
	Remove(name string) (any, bool)
	// RegisterDestructionCallback 注册作用域结束时执行的销毁回调
	RegisterDestructionCallback(name string, callback func())
}

type scopeEntry struct {
	val atomic.Value // 存储实例（尚未创建时为空）
	mu  sync.Mutex   // 创建此实例的锁
}

// SimpleScope 基于内存的作用域实现，例如一次请求或一个任务。
// 每个名称一把锁，不同名称的创建互不阻塞。
type SimpleScope struct {
	mu        sync.Mutex
	entries   map[string]*scopeEntry
	callbacks map[string]func()
	order     []string // 回调注册顺序
}

// NewSimpleScope 创建空作用域
func NewSimpleScope() *SimpleScope {
	return &SimpleScope{
		entries:   make(map[string]*scopeEntry),
		callbacks: make(map[string]func()),
	}
}

func (s *SimpleScope) entry(name string) *scopeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &scopeEntry{}
		s.entries[name] = e
	}
	return e
}

func (s *SimpleScope) Get(name string, create func() (any, error)) (any, error) {
	e := s.entry(name)

	// 快速路径
	if val := e.val.Load(); val != nil {
		return val.(scoped).obj, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 双重检查
	if val := e.val.Load(); val != nil {
		return val.(scoped).obj, nil
	}

	obj, err := create()
	if err != nil {
		return nil, err
	}
	e.val.Store(scoped{obj: obj})
	return obj, nil
}

// scoped 包一层，避免 atomic.Value 存入不同具体类型时 panic
type scoped struct {
	obj any
}

func (s *SimpleScope) Remove(name string) (any, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	delete(s.entries, name)
	delete(s.callbacks, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	val := e.val.Load()
	if val == nil {
		return nil, false
	}
	return val.(scoped).obj, true
}

func (s *SimpleScope) RegisterDestructionCallback(name string, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.callbacks[name]; !ok {
		s.order = append(s.order, name)
	}
	s.callbacks[name] = callback
}

// Len 当前实例数量
func (s *SimpleScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.val.Load() != nil {
			n++
		}
	}
	return n
}

// Destroy 结束作用域：按注册逆序执行销毁回调并清空实例
func (s *SimpleScope) Destroy() {
	s.mu.Lock()
	order := s.order
	callbacks := s.callbacks
	s.entries = make(map[string]*scopeEntry)
	s.callbacks = make(map[string]func())
	s.order = nil
	s.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		if cb := callbacks[order[i]]; cb != nil {
			cb()
		}
	}
}

// RegisterScope 注册自定义作用域；singleton 与 prototype 不可替换
func (f *Factory) RegisterScope(name string, scope Scope) error {
	if name == "" || scope == nil {
		return fmt.Errorf("di: scope name and scope must not be empty")
	}
	if name == ScopeSingleton || name == ScopePrototype {
		return fmt.Errorf("di: cannot replace built-in scope '%s'", name)
	}
	f.scopeMu.Lock()
	defer f.scopeMu.Unlock()
	if old, ok := f.scopes[name]; ok && !identical(old, scope) {
		f.logger.Debug("replacing scope", logging.String("scope", name))
	}
	f.scopes[name] = scope
	return nil
}

// RegisteredScope 按名称查找已注册的作用域，本地没有时查父容器
func (f *Factory) RegisteredScope(name string) (Scope, bool) {
	f.scopeMu.RLock()
	s, ok := f.scopes[name]
	f.scopeMu.RUnlock()
	if !ok && f.parent != nil {
		return f.parent.RegisteredScope(name)
	}
	return s, ok
}

// DestroyScopedBean 从其作用域移除并销毁 bean
func (f *Factory) DestroyScopedBean(name string) error {
	canonical := f.canonicalName(name)
	def, err := f.mergedDefinition(canonical)
	if err != nil {
		return err
	}
	if def.IsSingleton() || def.IsPrototype() {
		return fmt.Errorf("di: bean '%s' is not in a custom scope", name)
	}
	scope, ok := f.RegisteredScope(def.Scope)
	if !ok {
		return fmt.Errorf("di: no scope registered for scope name '%s'", def.Scope)
	}
	if obj, ok := scope.Remove(canonical); ok {
		f.newDisposable(canonical, obj, def).destroy()
	}
	return nil
}
