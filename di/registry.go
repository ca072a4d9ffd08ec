package di

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/logging"
)

// registrySnapshot 不可变快照，写入时整体替换
type registrySnapshot struct {
	defs    map[string]*Definition
	names   []string          // 注册顺序
	aliases map[string]string // alias -> name
}

func (s *registrySnapshot) copy() *registrySnapshot {
	return &registrySnapshot{
		defs:    maps.Clone(s.defs),
		names:   slices.Clone(s.names),
		aliases: maps.Clone(s.aliases),
	}
}

// canonical 沿别名链找到最终名称
func (s *registrySnapshot) canonical(name string) (string, bool) {
	seen := map[string]struct{}{}
	cur := name
	for {
		next, ok := s.aliases[cur]
		if !ok {
			return cur, true
		}
		if _, dup := seen[cur]; dup {
			return cur, false
		}
		seen[cur] = struct{}{}
		cur = next
	}
}

// Registry 名称到定义的注册表，带别名。
// 读操作无锁访问快照；写操作在互斥锁下复制并替换快照。
type Registry struct {
	mu              sync.Mutex
	snap            atomic.Pointer[registrySnapshot]
	allowOverriding atomic.Bool
	logger          logging.Logger

	// onReset 在定义注册、覆盖或移除后调用
	onReset func(name string)
}

// NewRegistry 创建空注册表，默认允许覆盖
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Registry{logger: logger}
	r.snap.Store(&registrySnapshot{
		defs:    map[string]*Definition{},
		aliases: map[string]string{},
	})
	r.allowOverriding.Store(true)
	return r
}

// SetAllowDefinitionOverriding 设置同名定义是否允许覆盖
func (r *Registry) SetAllowDefinitionOverriding(allow bool) {
	r.allowOverriding.Store(allow)
}

// AllowDefinitionOverriding 当前覆盖策略
func (r *Registry) AllowDefinitionOverriding() bool {
	return r.allowOverriding.Load()
}

// Register 以 name 注册定义的副本
func (r *Registry) Register(name string, def *Definition) error {
	if name == "" {
		return fmt.Errorf("di: definition name must not be empty")
	}
	if def == nil {
		return fmt.Errorf("di: definition for '%s' must not be nil", name)
	}
	if def.Parent == "" {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("di: invalid definition '%s': %w", name, err)
		}
	}
	stored := def.Clone()

	r.mu.Lock()
	cur := r.snap.Load()
	allow := r.allowOverriding.Load()

	if target, isAlias := cur.aliases[name]; isAlias {
		if !allow {
			r.mu.Unlock()
			return &DuplicateDefinitionError{Name: name, IsAlias: true}
		}
		r.logger.Info("definition replaces alias",
			logging.String("name", name), logging.String("aliasFor", target))
	}

	existing, exists := cur.defs[name]
	if exists {
		if !allow {
			r.mu.Unlock()
			return &DuplicateDefinitionError{Name: name}
		}
		switch {
		case existing.Role < stored.Role:
			r.logger.Warn("overriding user-defined definition with a framework-generated one",
				logging.String("name", name),
				logging.Field{Key: "oldRole", Value: existing.Role.String()},
				logging.Field{Key: "newRole", Value: stored.Role.String()})
		default:
			r.logger.Info("overriding definition", logging.String("name", name))
		}
	}

	next := cur.copy()
	delete(next.aliases, name)
	next.defs[name] = stored
	if !exists {
		next.names = append(next.names, name)
	}
	r.snap.Store(next)
	r.mu.Unlock()

	if r.onReset != nil {
		r.onReset(name)
	}
	return nil
}

// replace 不经过覆盖策略直接替换已有定义
func (r *Registry) replace(name string, def *Definition) error {
	r.mu.Lock()
	cur := r.snap.Load()
	if _, ok := cur.defs[name]; !ok {
		r.mu.Unlock()
		return &NotFoundError{Name: name}
	}
	next := cur.copy()
	next.defs[name] = def.Clone()
	r.snap.Store(next)
	r.mu.Unlock()

	if r.onReset != nil {
		r.onReset(name)
	}
	return nil
}

// Remove 移除定义；别名保留
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	cur := r.snap.Load()
	canonical, _ := cur.canonical(name)
	if _, ok := cur.defs[canonical]; !ok {
		r.mu.Unlock()
		return &NotFoundError{Name: name}
	}
	next := cur.copy()
	delete(next.defs, canonical)
	next.names = slices.DeleteFunc(next.names, func(n string) bool { return n == canonical })
	r.snap.Store(next)
	r.mu.Unlock()

	if r.onReset != nil {
		r.onReset(canonical)
	}
	return nil
}

// Get 返回定义副本
func (r *Registry) Get(name string) (*Definition, error) {
	def, ok := r.lookup(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return def.Clone(), nil
}

// lookup 返回内部存储的定义，调用方不得修改
func (r *Registry) lookup(name string) (*Definition, bool) {
	s := r.snap.Load()
	canonical, _ := s.canonical(name)
	def, ok := s.defs[canonical]
	return def, ok
}

// Contains 是否注册了该名称（含别名）
func (r *Registry) Contains(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names 按注册顺序返回所有定义名称
func (r *Registry) Names() []string {
	return slices.Clone(r.snap.Load().names)
}

// Count 定义数量
func (r *Registry) Count() int {
	return len(r.snap.Load().names)
}

// RegisterAlias 为 name 注册别名 alias
func (r *Registry) RegisterAlias(name, alias string) error {
	if name == "" || alias == "" {
		return fmt.Errorf("di: name and alias must not be empty")
	}

	r.mu.Lock()
	cur := r.snap.Load()

	if alias == name {
		if _, ok := cur.aliases[alias]; ok {
			next := cur.copy()
			delete(next.aliases, alias)
			r.snap.Store(next)
		}
		r.mu.Unlock()
		return nil
	}

	if _, ok := cur.defs[alias]; ok {
		r.mu.Unlock()
		return &InvalidAliasError{Alias: alias, Name: name, Reason: "a definition with that name already exists"}
	}
	if existing, ok := cur.aliases[alias]; ok {
		if existing == name {
			r.mu.Unlock()
			return nil
		}
		if !r.allowOverriding.Load() {
			r.mu.Unlock()
			return &InvalidAliasError{Alias: alias, Name: name,
				Reason: fmt.Sprintf("alias is already registered for '%s'", existing)}
		}
		r.logger.Info("overriding alias",
			logging.String("alias", alias), logging.String("old", existing), logging.String("new", name))
	}

	// name 沿别名链能回到 alias 即成环
	seen := map[string]struct{}{}
	for cur2 := name; ; {
		if cur2 == alias {
			r.mu.Unlock()
			return &InvalidAliasError{Alias: alias, Name: name, Reason: "circular reference"}
		}
		if _, dup := seen[cur2]; dup {
			break
		}
		seen[cur2] = struct{}{}
		next, ok := cur.aliases[cur2]
		if !ok {
			break
		}
		cur2 = next
	}

	next := cur.copy()
	next.aliases[alias] = name
	r.snap.Store(next)
	r.mu.Unlock()
	return nil
}

// RemoveAlias 移除别名
func (r *Registry) RemoveAlias(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snap.Load()
	if _, ok := cur.aliases[alias]; !ok {
		return &NotFoundError{Name: alias}
	}
	next := cur.copy()
	delete(next.aliases, alias)
	r.snap.Store(next)
	return nil
}

// ResolveAlias 沿别名链解析到最终名称
func (r *Registry) ResolveAlias(name string) (string, error) {
	canonical, ok := r.snap.Load().canonical(name)
	if !ok {
		return "", &InvalidAliasError{Alias: name, Name: canonical, Reason: "circular reference"}
	}
	return canonical, nil
}

// IsAlias 是否为别名
func (r *Registry) IsAlias(name string) bool {
	_, ok := r.snap.Load().aliases[name]
	return ok
}

// Aliases 返回（直接或间接）指向 name 的所有别名，已排序
func (r *Registry) Aliases(name string) []string {
	s := r.snap.Load()
	target, _ := s.canonical(name)
	var out []string
	for alias := range s.aliases {
		if alias == name {
			continue
		}
		if c, _ := s.canonical(alias); c == target {
			out = append(out, alias)
		}
	}
	if name != target {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) canonicalName(name string) string {
	c, _ := r.snap.Load().canonical(name)
	return c
}
