package di

import (
	"reflect"
	"slices"
)

// graphBuilder 不创建任何 bean，只根据定义静态分析依赖图。
type graphBuilder struct {
	f *Factory
	// softFields 允许循环引用时，属性与字段依赖可以通过提前暴露解决，不计入硬边
	softFields bool
}

// ValidateGraph 静态检查本容器中单例定义之间的依赖环。
// 构造参数、depends-on 与工厂方法所在 bean 总是硬依赖；
// 属性和 `di` 字段在未开启循环引用时同样视为硬依赖。
// 无法在不实例化的前提下确定的依赖（多候选、类型未知）被忽略，留给运行时检查。
func (f *Factory) ValidateGraph() error {
	g := &graphBuilder{f: f, softFields: f.Settings().AllowCircularReferences}
	_, err := g.buildOrder()
	return err
}

// DependencyOrder 返回单例的一个依赖优先顺序
func (f *Factory) DependencyOrder() ([]string, error) {
	g := &graphBuilder{f: f, softFields: f.Settings().AllowCircularReferences}
	return g.buildOrder()
}

// buildOrder 基于 DFS 的拓扑排序，按注册顺序遍历以保证结果稳定。
func (g *graphBuilder) buildOrder() ([]string, error) {
	names := g.f.Registry.Names()
	dependencies := make(map[string][]string, len(names))
	for _, name := range names {
		def, err := g.f.mergedDefinition(name)
		if err != nil {
			return nil, err
		}
		if def.Abstract || !def.IsSingleton() {
			continue
		}
		dependencies[name] = g.inspectDependencies(name, def)
	}

	visited := make(map[string]bool)
	var stack []string
	var order []string

	var visit func(string) error
	visit = func(u string) error {
		visited[u] = true
		stack = append(stack, u)
		for _, v := range dependencies[u] {
			// 非本地或非单例的依赖不在图中检查
			if _, exists := dependencies[v]; !exists {
				continue
			}
			if i := slices.Index(stack, v); i >= 0 {
				return &CircularReferenceError{Bean: v, Chain: append(slices.Clone(stack[i:]), v),
					Reason: "detected while validating the dependency graph"}
			}
			if !visited[v] {
				if err := visit(v); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		order = append(order, u)
		return nil
	}

	for _, name := range names {
		if _, ok := dependencies[name]; ok && !visited[name] {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// inspectDependencies 返回定义静态可知的依赖名称
func (g *graphBuilder) inspectDependencies(name string, def *Definition) []string {
	var deps []string
	add := func(n string) {
		if n == "" {
			return
		}
		n = g.f.transformedName(n)
		if n != name && !slices.Contains(deps, n) {
			deps = append(deps, n)
		}
	}

	for _, d := range def.DependsOn {
		add(d)
	}

	var params []reflect.Type
	switch {
	case def.FactoryMethod != "":
		add(def.FactoryBean)
		if declaring := g.f.declaringType(def.FactoryBean, 0); declaring != nil {
			if m, ok := declaring.MethodByName(def.FactoryMethod); ok {
				// 跳过接收者
				for i := 1; i < m.Type.NumIn(); i++ {
					params = append(params, m.Type.In(i))
				}
			}
		}
	case len(def.Constructors) == 1:
		ft := reflect.TypeOf(def.Constructors[0])
		for i := 0; i < ft.NumIn(); i++ {
			params = append(params, ft.In(i))
		}
	}
	for i, pt := range params {
		add(g.argDependency(name, argAt(def, i), pt))
	}

	if g.softFields {
		return deps
	}
	for _, prop := range def.Properties {
		add(g.argDependency(name, prop.Arg, nil))
	}
	if t := g.f.predictType(name, def); t != nil {
		if schema, err := analyzeStruct(t); err == nil {
			for _, fi := range schema.Fields {
				if fi.Optional {
					continue
				}
				if fi.ServiceName != "" {
					add(fi.ServiceName)
					continue
				}
				add(g.argDependency(name, Auto(), fi.Type))
			}
		}
	}
	return deps
}

// argDependency 参数唯一确定的依赖名称；无法静态确定时返回空
func (g *graphBuilder) argDependency(requester string, a Arg, target reflect.Type) string {
	switch a.Kind {
	case ArgValue:
		return ""
	case ArgRef:
		if a.Optional {
			return ""
		}
		return a.Ref
	}
	t := a.Type
	if t == nil {
		t = target
	}
	if t == nil || a.Optional || isCollectionType(t) {
		return ""
	}
	candidates := g.f.candidateNames(requester, t)
	if len(candidates) != 1 {
		return ""
	}
	return candidates[0]
}
