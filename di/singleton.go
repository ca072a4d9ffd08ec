package di

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// chain 一次顶层请求的创建链。
// 同一链上的嵌套创建共享它，以便区分“自己依赖自己”和“等待别的 goroutine”。
type chain struct {
	names []string
	// waiting 当前正在等待的创建记录；父子容器各有自己的锁，因此用原子指针
	waiting atomic.Pointer[creation]
}

func newChain() *chain {
	return &chain{}
}

func (c *chain) push(name string) { c.names = append(c.names, name) }

func (c *chain) pop() { c.names = c.names[:len(c.names)-1] }

func (c *chain) contains(name string) bool { return slices.Contains(c.names, name) }

// path 返回当前链并追加 name，用于错误信息
func (c *chain) path(name string) []string {
	return append(slices.Clone(c.names), name)
}

// creation 正在创建中的单例
type creation struct {
	owner *chain
	done  chan struct{}
	err   error
}

// singletonCache 单例缓存与创建中标记。
// 检查与标记在 mu 下完成，构造过程本身不持锁。
type singletonCache struct {
	mu sync.Mutex

	objects        map[string]any
	early          map[string]any
	earlyFactories map[string]func() (any, error)
	creating       map[string]*creation
	order          []string // 完成顺序
	manual         []string // RegisterSingleton 注册的名称
	products       map[string]any
	guards         map[string]*creation // 产物与作用域 bean 的创建者

	dependents   map[string]map[string]struct{} // bean -> 依赖它的 bean
	dependencies map[string]map[string]struct{} // bean -> 它依赖的 bean
	disposables  map[string]*disposableAdapter

	destroying bool
}

func newSingletonCache() *singletonCache {
	s := &singletonCache{}
	s.reset()
	return s
}

func (s *singletonCache) reset() {
	s.objects = map[string]any{}
	s.early = map[string]any{}
	s.earlyFactories = map[string]func() (any, error){}
	s.creating = map[string]*creation{}
	s.order = nil
	s.manual = nil
	s.products = map[string]any{}
	s.guards = map[string]*creation{}
	s.dependents = map[string]map[string]struct{}{}
	s.dependencies = map[string]map[string]struct{}{}
	s.disposables = map[string]*disposableAdapter{}
}

func (s *singletonCache) get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	return obj, ok
}

func (s *singletonCache) contains(name string) bool {
	_, ok := s.get(name)
	return ok
}

func (s *singletonCache) isCreating(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.creating[name]
	return ok
}

// names 按完成顺序返回单例名称
func (s *singletonCache) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *singletonCache) manualNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.manual)
}

// register 注册外部创建的单例
func (s *singletonCache) register(name string, obj any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; ok {
		return &DuplicateDefinitionError{Name: name}
	}
	if _, ok := s.creating[name]; ok {
		return &CircularReferenceError{Bean: name, Reason: "cannot register a singleton while it is in creation"}
	}
	s.objects[name] = obj
	s.order = append(s.order, name)
	s.manual = append(s.manual, name)
	return nil
}

// waitsOn 从 owner 出发沿等待关系能否走到 me；调用方持有 mu
func (s *singletonCache) waitsOn(owner, me *chain) bool {
	seen := map[*chain]struct{}{}
	for c := owner; c != nil; {
		if c == me {
			return true
		}
		rec := c.waiting.Load()
		if _, dup := seen[c]; dup || rec == nil {
			return false
		}
		seen[c] = struct{}{}
		c = rec.owner
	}
	return false
}

// awaitLocked 调用方持有 mu。检测跨 goroutine 的等待环，然后释放锁等待 rec 完成，
// 返回时重新持有 mu。超时或成环时返回 CircularReferenceError。
func (s *singletonCache) awaitLocked(name string, rec *creation, ch *chain, timeout time.Duration) error {
	if s.waitsOn(rec.owner, ch) {
		return &CircularReferenceError{Bean: name, Chain: ch.path(name),
			Reason: "bean is being created by another goroutine that is waiting on this one"}
	}
	ch.waiting.Store(rec)
	s.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-rec.done:
	case <-expired:
	}

	s.mu.Lock()
	ch.waiting.Store(nil)
	select {
	case <-rec.done:
		return nil
	default:
		return &CircularReferenceError{Bean: name, Chain: ch.path(name),
			Reason: "timed out waiting for creation by another goroutine"}
	}
}

// guard 让同一个 key 同时只有一条链在创建，用于 FactoryBean 产物与自定义作用域。
// 其它链等待持有者结束后重新检查；返回的 release 必须调用。
func (s *singletonCache) guard(key, name string, ch *chain, timeout time.Duration, reason string) (func(), error) {
	s.mu.Lock()
	for {
		rec, ok := s.guards[key]
		if !ok {
			break
		}
		if rec.owner == ch {
			s.mu.Unlock()
			return nil, &CircularReferenceError{Bean: name, Chain: ch.path(name), Reason: reason}
		}
		if err := s.awaitLocked(name, rec, ch, timeout); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	rec := &creation{owner: ch, done: make(chan struct{})}
	s.guards[key] = rec
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.guards[key] == rec {
			delete(s.guards, key)
		}
		close(rec.done)
		s.mu.Unlock()
	}, nil
}

// getOrCreate 返回缓存的单例；未缓存时由当前链创建。
// 其它链正在创建时阻塞等待，检测到跨 goroutine 的等待环立即失败。
func (s *singletonCache) getOrCreate(name string, ch *chain, timeout time.Duration, create func() (any, error)) (any, error) {
	s.mu.Lock()
	if obj, ok := s.objects[name]; ok {
		s.mu.Unlock()
		return obj, nil
	}
	if s.destroying {
		s.mu.Unlock()
		return nil, ErrFactoryDestroyed
	}

	if rec, ok := s.creating[name]; ok {
		if rec.owner == ch {
			if obj, ok := s.early[name]; ok {
				s.mu.Unlock()
				return obj, nil
			}
			if fn, ok := s.earlyFactories[name]; ok {
				delete(s.earlyFactories, name)
				s.mu.Unlock()
				obj, err := fn()
				if err != nil {
					return nil, &BeanInitializationError{Bean: name, Stage: StageEarlyRef, Err: err}
				}
				s.mu.Lock()
				s.early[name] = obj
				s.mu.Unlock()
				return obj, nil
			}
			s.mu.Unlock()
			return nil, &CircularReferenceError{Bean: name, Chain: ch.path(name)}
		}

		if err := s.awaitLocked(name, rec, ch, timeout); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if rec.err != nil {
			s.mu.Unlock()
			return nil, rec.err
		}
		obj, ok := s.objects[name]
		s.mu.Unlock()
		if !ok {
			// 创建完成后立即被销毁
			return nil, ErrFactoryDestroyed
		}
		return obj, nil
	}

	rec := &creation{owner: ch, done: make(chan struct{})}
	s.creating[name] = rec
	s.mu.Unlock()

	obj, err := s.runCreate(create)

	s.mu.Lock()
	delete(s.creating, name)
	delete(s.early, name)
	delete(s.earlyFactories, name)
	if err == nil {
		s.objects[name] = obj
		s.order = append(s.order, name)
	}
	rec.err = err
	close(rec.done)
	s.mu.Unlock()
	return obj, err
}

// runCreate 保证 panic 时创建记录也能被清理
func (s *singletonCache) runCreate(create func() (any, error)) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			obj, err = nil, panicError(r)
		}
	}()
	return create()
}

// addEarlyFactory 在原始实例创建后登记提前暴露入口
func (s *singletonCache) addEarlyFactory(name string, fn func() (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creating[name]; ok {
		s.earlyFactories[name] = fn
	}
}

// earlyReference 返回已被他人取走的提前引用
func (s *singletonCache) earlyReference(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.early[name]
	return obj, ok
}

func (s *singletonCache) product(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.products[name]
	return obj, ok
}

// productOrCreate 单例 FactoryBean 的产物只创建一次；并发请求等待创建者，
// 创建失败时下一个请求重新创建。
func (s *singletonCache) productOrCreate(name string, ch *chain, timeout time.Duration, create func() (any, error)) (any, error) {
	if obj, ok := s.product(name); ok {
		return obj, nil
	}
	release, err := s.guard(FactoryBeanPrefix+"product:"+name, name, ch, timeout,
		"FactoryBean product is already in creation")
	if err != nil {
		return nil, err
	}
	defer release()
	if obj, ok := s.product(name); ok {
		return obj, nil
	}

	obj, err := s.runCreate(create)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		// FactoryBean 在产物创建期间被销毁
		return nil, ErrFactoryDestroyed
	}
	s.products[name] = obj
	return obj, nil
}

// registerDependent 记录 dependent 依赖 bean
func (s *singletonCache) registerDependent(bean, dependent string) {
	if bean == "" || dependent == "" || bean == dependent {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	addEdge(s.dependents, bean, dependent)
	addEdge(s.dependencies, dependent, bean)
}

func addEdge(m map[string]map[string]struct{}, from, to string) {
	set, ok := m[from]
	if !ok {
		set = map[string]struct{}{}
		m[from] = set
	}
	set[to] = struct{}{}
}

// isDependent dependent 是否（传递地）依赖 bean
func (s *singletonCache) isDependent(bean, dependent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var walk func(string) bool
	walk = func(b string) bool {
		if _, ok := seen[b]; ok {
			return false
		}
		seen[b] = struct{}{}
		set := s.dependents[b]
		if _, ok := set[dependent]; ok {
			return true
		}
		for d := range set {
			if walk(d) {
				return true
			}
		}
		return false
	}
	return walk(bean)
}

// dependentsOf 返回依赖 bean 的名称
func (s *singletonCache) dependentsOf(bean string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dependents[bean]))
	for d := range s.dependents[bean] {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

func (s *singletonCache) addDisposable(name string, d *disposableAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposables[name] = d
}

// remove 移除单例及其关联状态，返回依赖它的 bean 与销毁适配器
func (s *singletonCache) remove(name string) ([]string, *disposableAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	delete(s.early, name)
	delete(s.earlyFactories, name)
	delete(s.products, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	s.manual = slices.DeleteFunc(s.manual, func(n string) bool { return n == name })

	disposable := s.disposables[name]
	delete(s.disposables, name)

	var deps []string
	for d := range s.dependents[name] {
		deps = append(deps, d)
	}
	slices.Sort(deps)
	delete(s.dependents, name)

	for dep := range s.dependencies[name] {
		if set, ok := s.dependents[dep]; ok {
			delete(set, name)
		}
	}
	delete(s.dependencies, name)
	return deps, disposable
}

func (s *singletonCache) setDestroying(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroying = v
}
