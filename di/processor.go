package di

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
)

const (
	// HighestPrecedence 最先执行
	HighestPrecedence = math.MinInt
	// LowestPrecedence 最后执行，未实现 Ordered 的处理器使用该值
	LowestPrecedence = math.MaxInt
)

// Ordered 决定处理器执行顺序，数值越小越先执行；相同时按注册顺序
type Ordered interface {
	Order() int
}

// InstantiationAwareProcessor 在实例化前后介入。
//
// BeforeInstantiation 返回非 nil 时跳过常规创建，直接进入初始化后处理；
// AfterInstantiation 返回 false 时跳过属性填充。
type InstantiationAwareProcessor interface {
	BeforeInstantiation(name string, def *Definition) (any, error)
	AfterInstantiation(name string, bean any) (bool, error)
}

// PropertyProcessor 在属性应用前处理属性集合，可以自行注入（如字段注入）。
// 返回 nil 切片表示跳过定义中的属性应用。
type PropertyProcessor interface {
	ProcessProperties(inj Injector, name string, bean any, props []Property) ([]Property, error)
}

// BeforeInitProcessor 初始化方法之前调用，返回值替换 bean；返回 nil 保留原实例
type BeforeInitProcessor interface {
	BeforeInitialization(name string, bean any) (any, error)
}

// AfterInitProcessor 初始化方法之后调用，返回值替换 bean（代理通常在此生成）；返回 nil 保留原实例
type AfterInitProcessor interface {
	AfterInitialization(name string, bean any) (any, error)
}

// EarlyReferenceProcessor 为提前暴露的单例提供引用（例如提前生成代理）
type EarlyReferenceProcessor interface {
	EarlyReference(name string, bean any) (any, error)
}

// DestructionAwareProcessor 单例销毁前回调
type DestructionAwareProcessor interface {
	BeforeDestruction(name string, bean any) error
	RequiresDestruction(bean any) bool
}

// DefinitionPostProcessor 在任何 bean 创建之前修改注册表
type DefinitionPostProcessor interface {
	PostProcessDefinitions(f *Factory) error
}

// AfterInitFunc 函数形式的 AfterInitProcessor
type AfterInitFunc func(name string, bean any) (any, error)

func (fn AfterInitFunc) AfterInitialization(name string, bean any) (any, error) {
	return fn(name, bean)
}

// BeforeInitFunc 函数形式的 BeforeInitProcessor
type BeforeInitFunc func(name string, bean any) (any, error)

func (fn BeforeInitFunc) BeforeInitialization(name string, bean any) (any, error) {
	return fn(name, bean)
}

func orderOf(p any) int {
	if o, ok := p.(Ordered); ok {
		return o.Order()
	}
	return LowestPrecedence
}

func processorName(p any) string {
	return fmt.Sprintf("%T", p)
}

// pipeline 已排序并按钩子分类的处理器快照
type pipeline struct {
	all          []any
	instAware    []InstantiationAwareProcessor
	property     []PropertyProcessor
	beforeInit   []BeforeInitProcessor
	afterInit    []AfterInitProcessor
	earlyRef     []EarlyReferenceProcessor
	destructions []DestructionAwareProcessor
}

func newPipeline(procs []any) *pipeline {
	sorted := slices.Clone(procs)
	slices.SortStableFunc(sorted, func(a, b any) int {
		oa, ob := orderOf(a), orderOf(b)
		switch {
		case oa < ob:
			return -1
		case oa > ob:
			return 1
		}
		return 0
	})

	p := &pipeline{all: sorted}
	for _, proc := range sorted {
		if v, ok := proc.(InstantiationAwareProcessor); ok {
			p.instAware = append(p.instAware, v)
		}
		if v, ok := proc.(PropertyProcessor); ok {
			p.property = append(p.property, v)
		}
		if v, ok := proc.(BeforeInitProcessor); ok {
			p.beforeInit = append(p.beforeInit, v)
		}
		if v, ok := proc.(AfterInitProcessor); ok {
			p.afterInit = append(p.afterInit, v)
		}
		if v, ok := proc.(EarlyReferenceProcessor); ok {
			p.earlyRef = append(p.earlyRef, v)
		}
		if v, ok := proc.(DestructionAwareProcessor); ok {
			p.destructions = append(p.destructions, v)
		}
	}
	return p
}

// processors 处理器注册表，读取无锁
type processors struct {
	mu         sync.Mutex
	registered []any
	snap       atomic.Pointer[pipeline]
}

func newProcessors() *processors {
	ps := &processors{}
	ps.snap.Store(newPipeline(nil))
	return ps
}

func (ps *processors) add(p any) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	// 重复注册时移到末尾
	ps.registered = slices.DeleteFunc(ps.registered, func(x any) bool { return identical(x, p) })
	ps.registered = append(ps.registered, p)
	ps.snap.Store(newPipeline(ps.registered))
}

func (ps *processors) load() *pipeline {
	return ps.snap.Load()
}

// isProcessor 是否实现了任意一个 bean 级钩子
func isProcessor(p any) bool {
	switch p.(type) {
	case InstantiationAwareProcessor, PropertyProcessor, BeforeInitProcessor,
		AfterInitProcessor, EarlyReferenceProcessor, DestructionAwareProcessor:
		return true
	}
	return false
}
