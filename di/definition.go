package di

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

const (
	// ScopeSingleton 每个容器一个实例（默认）。
	ScopeSingleton = "singleton"
	// ScopePrototype 每次请求创建一个新实例。
	ScopePrototype = "prototype"
)

// InferDestroyMethod 作为 DestroyMethod 时，按 Close、Shutdown 的顺序推断销毁方法。
const InferDestroyMethod = "(inferred)"

// AttrObjectType 定义属性：声明 FactoryBean 或 Supplier 产出的类型（reflect.Type），
// 使按类型查询无需提前实例化。
const AttrObjectType = "di.objectType"

// Role 定义的角色，影响覆盖时的日志级别。
type Role int

const (
	// RoleApplication 应用定义
	RoleApplication Role = iota
	// RoleSupport 支撑性定义，通常是较大配置的一部分
	RoleSupport
	// RoleInfrastructure 框架内部定义
	RoleInfrastructure
)

func (r Role) String() string {
	switch r {
	case RoleApplication:
		return "application"
	case RoleSupport:
		return "support"
	case RoleInfrastructure:
		return "infrastructure"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Definition 描述如何产出一个 bean。
//
// 构造策略按优先级：Supplier、FactoryBean+FactoryMethod、Constructors；
// 三者都没有时，指针结构体类型 Type 以零值构造。
type Definition struct {
	// Type 目标类型；为空时由 TypeName 通过 TypeRegistry 解析，或由构造函数返回值推断。
	Type     reflect.Type
	TypeName string

	// Scope 为空时视为 ScopeSingleton
	Scope string

	Constructors  []any
	Supplier      func() (any, error)
	FactoryBean   string
	FactoryMethod string

	Args       []Arg
	Properties []Property

	InitMethods   []string
	DestroyMethod string
	DependsOn     []string

	Lazy      bool
	Primary   bool
	Priority  *int
	Role      Role
	Abstract  bool
	Synthetic bool

	// Parent 父定义名称，作为模板与本定义合并
	Parent string

	Attributes  map[string]any
	Description string
}

// NewDefinition 用选项构造定义
func NewDefinition(opts ...Option) *Definition {
	d := &Definition{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsSingleton 作用域为空或 singleton
func (d *Definition) IsSingleton() bool {
	return d.Scope == "" || d.Scope == ScopeSingleton
}

// IsPrototype 作用域为 prototype
func (d *Definition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// Attribute 读取属性，不存在时返回 nil
func (d *Definition) Attribute(key string) any {
	if d.Attributes == nil {
		return nil
	}
	return d.Attributes[key]
}

// SetAttribute 设置属性
func (d *Definition) SetAttribute(key string, value any) {
	if d.Attributes == nil {
		d.Attributes = make(map[string]any)
	}
	d.Attributes[key] = value
}

// HasPriority 是否设置了优先级
func (d *Definition) HasPriority() bool {
	return d.Priority != nil
}

// Clone 深拷贝定义的切片与映射字段
func (d *Definition) Clone() *Definition {
	c := *d
	c.Constructors = slices.Clone(d.Constructors)
	c.Args = slices.Clone(d.Args)
	c.Properties = slices.Clone(d.Properties)
	c.InitMethods = slices.Clone(d.InitMethods)
	c.DependsOn = slices.Clone(d.DependsOn)
	if d.Priority != nil {
		p := *d.Priority
		c.Priority = &p
	}
	if d.Attributes != nil {
		c.Attributes = maps.Clone(d.Attributes)
	}
	return &c
}

// Validate 检查定义自身是否一致，带 Parent 的定义在合并后才校验
func (d *Definition) Validate() error {
	if d.Abstract {
		return nil
	}
	if d.FactoryMethod != "" && d.FactoryBean == "" {
		return fmt.Errorf("di: factory method %q requires a declaring factory bean", d.FactoryMethod)
	}
	if d.FactoryMethod == "" && d.FactoryBean != "" {
		return fmt.Errorf("di: factory bean %q declared without a factory method", d.FactoryBean)
	}
	strategies := 0
	if d.Supplier != nil {
		strategies++
	}
	if d.FactoryMethod != "" {
		strategies++
	}
	if len(d.Constructors) > 0 {
		strategies++
	}
	if strategies > 1 {
		return fmt.Errorf("di: definition declares more than one construction strategy")
	}
	if strategies == 0 && d.Type == nil && d.TypeName == "" {
		return fmt.Errorf("di: definition has neither a type nor a construction strategy")
	}

	var out reflect.Type
	for i, ctor := range d.Constructors {
		ft := reflect.TypeOf(ctor)
		if ft == nil || ft.Kind() != reflect.Func {
			return fmt.Errorf("di: constructor %d is %T, not a function", i, ctor)
		}
		if err := checkReturns(ft); err != nil {
			return fmt.Errorf("di: constructor %d: %w", i, err)
		}
		if out == nil {
			out = ft.Out(0)
		} else if ft.Out(0) != out {
			return fmt.Errorf("di: constructors return different types: %v and %v", out, ft.Out(0))
		}
	}
	if out != nil && d.Type != nil && !out.AssignableTo(d.Type) {
		return fmt.Errorf("di: constructor returns %v, not assignable to %v", out, d.Type)
	}
	if v := d.Attribute(AttrObjectType); v != nil {
		if t, ok := v.(reflect.Type); !ok || t == nil {
			return fmt.Errorf("di: attribute %s must be a reflect.Type", AttrObjectType)
		}
	}
	return nil
}

// checkReturns 函数必须返回 (T) 或 (T, error)
func checkReturns(ft reflect.Type) error {
	switch ft.NumOut() {
	case 1:
		return nil
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("second return value must be error, got %v", ft.Out(1))
		}
		return nil
	default:
		return fmt.Errorf("must return (T) or (T, error), got %d values", ft.NumOut())
	}
}

// mergeDefinition 把 child 覆盖到 parent 模板上，返回新定义。
// 子定义的非零字段优先；属性按名称合并；Attributes 合并；Abstract 不继承。
func mergeDefinition(parent, child *Definition) *Definition {
	m := parent.Clone()
	m.Abstract = child.Abstract
	m.Parent = ""

	if child.Type != nil {
		m.Type = child.Type
	}
	if child.TypeName != "" {
		m.TypeName = child.TypeName
	}
	if child.Scope != "" {
		m.Scope = child.Scope
	}

	// 构造策略整体替换
	if child.Supplier != nil || child.FactoryMethod != "" || len(child.Constructors) > 0 {
		m.Supplier = child.Supplier
		m.FactoryBean = child.FactoryBean
		m.FactoryMethod = child.FactoryMethod
		m.Constructors = slices.Clone(child.Constructors)
	}
	if len(child.Args) > 0 {
		m.Args = slices.Clone(child.Args)
	}
	for _, p := range child.Properties {
		idx := slices.IndexFunc(m.Properties, func(x Property) bool { return x.Name == p.Name })
		if idx >= 0 {
			m.Properties[idx] = p
		} else {
			m.Properties = append(m.Properties, p)
		}
	}
	if len(child.InitMethods) > 0 {
		m.InitMethods = slices.Clone(child.InitMethods)
	}
	if child.DestroyMethod != "" {
		m.DestroyMethod = child.DestroyMethod
	}
	for _, dep := range child.DependsOn {
		if !slices.Contains(m.DependsOn, dep) {
			m.DependsOn = append(m.DependsOn, dep)
		}
	}

	m.Lazy = child.Lazy
	m.Primary = child.Primary
	if child.Priority != nil {
		p := *child.Priority
		m.Priority = &p
	}
	m.Role = child.Role
	m.Synthetic = child.Synthetic
	for k, v := range child.Attributes {
		m.SetAttribute(k, v)
	}
	if child.Description != "" {
		m.Description = child.Description
	}
	return m
}
