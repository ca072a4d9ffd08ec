package di

import (
	"reflect"
	"slices"
)

// predictType 不实例化地推断定义产出的类型，无法推断时返回 nil
func (f *Factory) predictType(name string, def *Definition) reflect.Type {
	return f.predictTypeDepth(name, def, 0)
}

func (f *Factory) predictTypeDepth(name string, def *Definition, depth int) reflect.Type {
	if depth > maxParentDepth {
		return nil
	}
	if def.Type != nil {
		return def.Type
	}
	if def.TypeName != "" {
		if t, ok := f.types.Lookup(def.TypeName); ok {
			return t
		}
		return nil
	}
	if len(def.Constructors) > 0 {
		if ft := reflect.TypeOf(def.Constructors[0]); ft != nil && ft.Kind() == reflect.Func && ft.NumOut() > 0 {
			return ft.Out(0)
		}
		return nil
	}
	if def.FactoryMethod != "" {
		declaring := f.declaringType(def.FactoryBean, depth)
		if declaring == nil {
			return nil
		}
		if m, ok := declaring.MethodByName(def.FactoryMethod); ok && m.Type.NumOut() > 0 {
			return m.Type.Out(0)
		}
		return nil
	}
	if def.Supplier != nil {
		if t, ok := def.Attribute(AttrObjectType).(reflect.Type); ok {
			return t
		}
	}
	return nil
}

// declaringType 工厂方法所在 bean 的类型
func (f *Factory) declaringType(factoryBean string, depth int) reflect.Type {
	beanName := f.transformedName(factoryBean)
	if obj, ok := f.singletons.get(beanName); ok {
		return reflect.TypeOf(obj)
	}
	def, err := f.mergedDefinition(beanName)
	if err != nil {
		if f.parent != nil {
			return f.parent.declaringType(factoryBean, depth+1)
		}
		return nil
	}
	return f.predictTypeDepth(beanName, def, depth+1)
}

func typeMatches(actual, required reflect.Type) bool {
	return actual != nil && actual.AssignableTo(required)
}

// NamesForType 返回本容器中可赋值给 t 的 bean 名称，按注册顺序。
//
// allowEagerInit 为 false 时绝不实例化：类型需要创建后才能确定的定义
// （FactoryBean 产物、未声明类型的 supplier 或工厂方法）被跳过。
func (f *Factory) NamesForType(t reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	return f.namesForType(newChain(), t, includeNonSingletons, allowEagerInit)
}

func (f *Factory) namesForType(ch *chain, t reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	var out []string
	for _, name := range f.Registry.Names() {
		def, err := f.mergedDefinition(name)
		if err != nil || def.Abstract {
			continue
		}
		out = append(out, f.matchDefinition(ch, name, def, t, includeNonSingletons, allowEagerInit)...)
	}

	// 手动注册的单例
	for _, name := range f.singletons.manualNames() {
		if f.Registry.Contains(name) {
			continue
		}
		obj, ok := f.singletons.get(name)
		if !ok {
			continue
		}
		if fb, isFB := obj.(FactoryBean); isFB {
			if (includeNonSingletons || fb.IsSingleton()) && typeMatches(fb.ObjectType(), t) {
				out = append(out, name)
			}
			if typeMatches(reflect.TypeOf(obj), t) {
				out = append(out, FactoryBeanPrefix+name)
			}
			continue
		}
		if typeMatches(reflect.TypeOf(obj), t) {
			out = append(out, name)
		}
	}
	return out
}

func (f *Factory) matchDefinition(ch *chain, name string, def *Definition, t reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	obj, instantiated := f.singletons.get(name)
	predicted := f.predictType(name, def)

	isFB := (instantiated && isFactoryBeanInstance(obj)) ||
		(!instantiated && predicted != nil && predicted.Implements(factoryBeanType))

	if !isFB {
		if !includeNonSingletons && !def.IsSingleton() {
			return nil
		}
		if instantiated {
			if typeMatches(reflect.TypeOf(obj), t) || typeMatches(predicted, t) {
				return []string{name}
			}
			return nil
		}
		if predicted == nil {
			// 类型只能通过创建确定
			if !allowEagerInit || !def.IsSingleton() || f.singletons.isCreating(name) {
				return nil
			}
			created, err := f.getBean(ch, name)
			if err != nil || !typeMatches(reflect.TypeOf(created), t) {
				return nil
			}
			return []string{name}
		}
		if typeMatches(predicted, t) {
			return []string{name}
		}
		return nil
	}

	var out []string
	switch {
	case instantiated:
		fb := obj.(FactoryBean)
		if (includeNonSingletons || (def.IsSingleton() && fb.IsSingleton())) && typeMatches(fb.ObjectType(), t) {
			out = append(out, name)
		}
	case def.Attribute(AttrObjectType) != nil:
		ot, _ := def.Attribute(AttrObjectType).(reflect.Type)
		if (includeNonSingletons || def.IsSingleton()) && typeMatches(ot, t) {
			out = append(out, name)
		}
	case allowEagerInit && (def.IsSingleton() || includeNonSingletons) && !f.singletons.isCreating(name):
		raw, err := f.getBean(ch, FactoryBeanPrefix+name)
		if err == nil {
			fb := raw.(FactoryBean)
			if (includeNonSingletons || (def.IsSingleton() && fb.IsSingleton())) && typeMatches(fb.ObjectType(), t) {
				out = append(out, name)
			}
		}
	}

	// FactoryBean 本身
	fbType := predicted
	if instantiated {
		fbType = reflect.TypeOf(obj)
	}
	if (includeNonSingletons || def.IsSingleton()) && typeMatches(fbType, t) {
		out = append(out, FactoryBeanPrefix+name)
	}
	return out
}

func isFactoryBeanInstance(obj any) bool {
	_, ok := obj.(FactoryBean)
	return ok
}

// NamesForTypeIncludingAncestors 合并祖先容器的结果；
// 本容器包含的名称（无论类型是否匹配）会完全遮蔽祖先的同名条目。
func (f *Factory) NamesForTypeIncludingAncestors(t reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	return f.namesForTypeIncludingAncestors(newChain(), t, includeNonSingletons, allowEagerInit)
}

func (f *Factory) namesForTypeIncludingAncestors(ch *chain, t reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	out := f.namesForType(ch, t, includeNonSingletons, allowEagerInit)
	if f.parent == nil {
		return out
	}
	for _, name := range f.parent.namesForTypeIncludingAncestors(ch, t, includeNonSingletons, allowEagerInit) {
		if slices.Contains(out, name) || f.containsLocalName(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// containsLocalName 本容器是否使用了该名称（定义、别名或单例）
func (f *Factory) containsLocalName(name string) bool {
	beanName := f.transformedName(name)
	return f.Registry.Contains(beanName) || f.Registry.IsAlias(beanName) || f.singletons.contains(beanName)
}

// BeansOfType 返回名称到实例的映射
func (f *Factory) BeansOfType(t reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error) {
	return f.beansOf(f.NamesForType(t, includeNonSingletons, allowEagerInit))
}

// BeansOfTypeIncludingAncestors 同 BeansOfType，包含祖先容器且本地优先
func (f *Factory) BeansOfTypeIncludingAncestors(t reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error) {
	return f.beansOf(f.NamesForTypeIncludingAncestors(t, includeNonSingletons, allowEagerInit))
}

func (f *Factory) beansOf(names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	for _, name := range names {
		obj, err := f.GetBean(name)
		if err != nil {
			// 正在创建中的 bean 跳过，由其创建链自己处理
			if f.singletons.isCreating(f.transformedName(name)) {
				continue
			}
			return nil, err
		}
		out[name] = obj
	}
	return out, nil
}
