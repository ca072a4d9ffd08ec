package di

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// TypeOf 获取类型 T 的 reflect.Type（泛型辅助函数）
//
// 示例：
//
//	repoType := di.TypeOf[Repository]()
//	names := factory.NamesForType(repoType, true, false)
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

var (
	errorType     = TypeOf[error]()
	containerType = TypeOf[Container]()
)

// TypeRegistry 按名称登记类型，用于解析 Definition.TypeName。
// 它扮演类加载器的角色：定义可以只写类型名，直到创建时才解析为具体类型。
// 每个 Factory 拥有自己的 TypeRegistry，不存在进程级全局表。
type TypeRegistry struct {
	mu     sync.RWMutex
	types  map[string]reflect.Type
	parent *TypeRegistry
}

// NewTypeRegistry 创建类型注册表，parent 可为 nil
func NewTypeRegistry(parent *TypeRegistry) *TypeRegistry {
	return &TypeRegistry{
		types:  make(map[string]reflect.Type),
		parent: parent,
	}
}

// Register 以 name 登记类型；同名不同类型返回错误
func (r *TypeRegistry) Register(name string, typ reflect.Type) error {
	if name == "" || typ == nil {
		return fmt.Errorf("di: type name and type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[name]; ok && existing != typ {
		return fmt.Errorf("di: type name %q already bound to %v", name, existing)
	}
	r.types[name] = typ
	return nil
}

// Lookup 按名称查找类型，本地未命中时查找父注册表
func (r *TypeRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	typ, ok := r.types[name]
	r.mu.RUnlock()
	if ok {
		return typ, true
	}
	if r.parent != nil {
		return r.parent.Lookup(name)
	}
	return nil, false
}

// Names 返回本地登记的所有类型名（已排序）
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterType 以 name 登记类型 T
func RegisterType[T any](r *TypeRegistry, name string) error {
	return r.Register(name, TypeOf[T]())
}

// identical 判断两个实例是否为同一引用；对不可比较类型退化为指针比较
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Type().Comparable() {
		return a == b
	}
	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return false
}
