package di

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Dependency 一次按类型解析的请求
type Dependency struct {
	Type reflect.Type
	// Name 名称提示：多个候选时，与之同名（或别名）的候选直接胜出
	Name     string
	Optional bool
}

// Resolved 解析结果。Present 为 false 表示可选依赖缺失，与“找到了但值为 nil”区分开
type Resolved struct {
	Name    string
	Value   any
	Present bool
}

// Injector 绑定到当前创建链与请求方的解析器，供 PropertyProcessor 使用
type Injector interface {
	ResolveDependency(dep Dependency) (Resolved, error)
	GetBean(name string) (any, error)
	// ContainsBean 名称是否存在（含祖先容器）
	ContainsBean(name string) bool
}

type injector struct {
	f         *Factory
	ch        *chain
	requester string
}

func (i *injector) ResolveDependency(dep Dependency) (Resolved, error) {
	return i.f.resolve(i.ch, i.requester, dep)
}

func (i *injector) GetBean(name string) (any, error) {
	obj, err := i.f.getBean(i.ch, name)
	if err != nil {
		return nil, err
	}
	i.f.singletons.registerDependent(i.f.transformedName(name), i.requester)
	return obj, nil
}

func (i *injector) ContainsBean(name string) bool {
	return i.f.ContainsBean(name)
}

// ResolveDependency 在新的创建链上解析依赖
func (f *Factory) ResolveDependency(dep Dependency) (Resolved, error) {
	return f.resolve(newChain(), "", dep)
}

// GetBeanByType 返回唯一可赋值给 t 的 bean
func (f *Factory) GetBeanByType(t reflect.Type) (any, error) {
	res, err := f.ResolveDependency(Dependency{Type: t})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// isCollectionType []T 或 map[string]T，T 为接口或指针时按集合注入
func isCollectionType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice:
		return isBeanLike(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && isBeanLike(t.Elem())
	}
	return false
}

func isBeanLike(t reflect.Type) bool {
	return t.Kind() == reflect.Interface || t.Kind() == reflect.Pointer
}

// candidateNames 按类型收集候选名称（含祖先），排除请求方自身
func (f *Factory) candidateNames(requester string, t reflect.Type) []string {
	return f.candidatesIn(newChain(), requester, t, false)
}

func (f *Factory) candidatesIn(ch *chain, requester string, t reflect.Type, allowEagerInit bool) []string {
	names := f.namesForTypeIncludingAncestors(ch, t, true, allowEagerInit)
	if requester == "" {
		return names
	}
	return slices.DeleteFunc(names, func(n string) bool {
		return strings.TrimPrefix(n, FactoryBeanPrefix) == requester
	})
}

// resolvableFor 返回可赋值给 t 的可解析依赖（本地优先）
func (f *Factory) resolvableFor(t reflect.Type) *resolvableDependency {
	f.resolvableMu.RLock()
	for i := range f.resolvable {
		r := f.resolvable[i]
		if r.typ.AssignableTo(t) && r.value != nil && reflect.TypeOf(r.value).AssignableTo(t) {
			f.resolvableMu.RUnlock()
			return &r
		}
	}
	f.resolvableMu.RUnlock()
	if f.parent != nil {
		return f.parent.resolvableFor(t)
	}
	return nil
}

// resolve 按类型解析：名称提示 > 唯一 primary > 唯一最高优先级 > 歧义错误
func (f *Factory) resolve(ch *chain, requester string, dep Dependency) (Resolved, error) {
	if dep.Type == nil {
		return Resolved{}, fmt.Errorf("di: dependency type must not be nil")
	}
	if isCollectionType(dep.Type) {
		return f.resolveCollection(ch, requester, dep)
	}

	candidates := f.candidatesIn(ch, requester, dep.Type, true)
	switch len(candidates) {
	case 0:
		if r := f.resolvableFor(dep.Type); r != nil {
			return Resolved{Value: r.value, Present: true}, nil
		}
		if dep.Optional {
			return Resolved{}, nil
		}
		reason := "expected at least 1 bean which qualifies as autowire candidate"
		if dep.Name != "" {
			reason += fmt.Sprintf(" (name hint '%s')", dep.Name)
		}
		return Resolved{}, &NoSuchDefinitionError{Type: dep.Type, Reason: reason}
	case 1:
		return f.resolveCandidate(ch, requester, candidates[0], dep.Type)
	}

	chosen, err := f.determineCandidate(candidates, dep)
	if err != nil {
		return Resolved{}, err
	}
	return f.resolveCandidate(ch, requester, chosen, dep.Type)
}

func (f *Factory) resolveCandidate(ch *chain, requester, name string, t reflect.Type) (Resolved, error) {
	obj, err := f.getBean(ch, name)
	if err != nil {
		return Resolved{}, err
	}
	f.singletons.registerDependent(f.transformedName(name), requester)
	if obj != nil && !reflect.TypeOf(obj).AssignableTo(t) {
		return Resolved{}, &TypeMismatchError{Bean: name, Required: t, Actual: reflect.TypeOf(obj)}
	}
	return Resolved{Name: name, Value: obj, Present: true}, nil
}

// determineCandidate 多个候选时消歧，绝不随意挑选
func (f *Factory) determineCandidate(candidates []string, dep Dependency) (string, error) {
	if dep.Name != "" {
		hint := f.transformedName(dep.Name)
		for _, c := range candidates {
			if c == dep.Name || f.transformedName(c) == hint {
				return c, nil
			}
		}
	}

	var primaries []string
	for _, c := range candidates {
		if f.isPrimary(c) {
			primaries = append(primaries, c)
		}
	}
	switch len(primaries) {
	case 1:
		return primaries[0], nil
	case 0:
	default:
		return "", &AmbiguousDependencyError{Type: dep.Type, Candidates: candidates,
			Reason: fmt.Sprintf("more than one 'primary' bean found among candidates (%s)", strings.Join(primaries, ", "))}
	}

	best, bestPriority, tie := "", 0, false
	for _, c := range candidates {
		p, ok := f.priorityOf(c)
		if !ok {
			continue
		}
		switch {
		case best == "" || p < bestPriority:
			best, bestPriority, tie = c, p, false
		case p == bestPriority:
			tie = true
		}
	}
	if best != "" {
		if tie {
			return "", &AmbiguousDependencyError{Type: dep.Type, Candidates: candidates,
				Reason: fmt.Sprintf("multiple beans found with the same priority (%d)", bestPriority)}
		}
		return best, nil
	}

	return "", &AmbiguousDependencyError{Type: dep.Type, Candidates: candidates}
}

// definitionOwner 返回定义该名称的容器（本地优先）
func (f *Factory) definitionOwner(name string) (*Factory, *Definition) {
	beanName := f.transformedName(name)
	for cur := f; cur != nil; cur = cur.parent {
		if def, err := cur.mergedDefinition(cur.transformedName(name)); err == nil {
			return cur, def
		}
		if cur.singletons.contains(beanName) {
			return cur, nil
		}
	}
	return nil, nil
}

func (f *Factory) isPrimary(name string) bool {
	_, def := f.definitionOwner(name)
	return def != nil && def.Primary
}

func (f *Factory) priorityOf(name string) (int, bool) {
	_, def := f.definitionOwner(name)
	if def == nil || def.Priority == nil {
		return 0, false
	}
	return *def.Priority, true
}

// resolveCollection 注入 []T（按优先级、再按注册顺序）或 map[string]T
func (f *Factory) resolveCollection(ch *chain, requester string, dep Dependency) (Resolved, error) {
	elem := dep.Type.Elem()
	names := f.candidatesIn(ch, requester, elem, true)

	if dep.Type.Kind() == reflect.Slice {
		slices.SortStableFunc(names, func(a, b string) int {
			pa, oka := f.priorityOf(a)
			pb, okb := f.priorityOf(b)
			switch {
			case oka && okb:
				return pa - pb
			case oka:
				return -1
			case okb:
				return 1
			}
			return 0
		})
		out := reflect.MakeSlice(dep.Type, 0, len(names))
		for _, name := range names {
			res, err := f.resolveCandidate(ch, requester, name, elem)
			if err != nil {
				return Resolved{}, err
			}
			out = reflect.Append(out, reflect.ValueOf(res.Value))
		}
		return Resolved{Value: out.Interface(), Present: true}, nil
	}

	out := reflect.MakeMapWithSize(dep.Type, len(names))
	for _, name := range names {
		res, err := f.resolveCandidate(ch, requester, name, elem)
		if err != nil {
			return Resolved{}, err
		}
		out.SetMapIndex(reflect.ValueOf(name).Convert(dep.Type.Key()), reflect.ValueOf(res.Value))
	}
	return Resolved{Value: out.Interface(), Present: true}, nil
}
