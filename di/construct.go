package di

import (
	"fmt"
	"reflect"
)

// constructionStrategy 一种创建原始实例的方式：描述所需参数，并用解析好的参数调用。
type constructionStrategy interface {
	describe() string
	params() []reflect.Type
	variadic() bool
	invoke(args []reflect.Value) (any, error)
}

// funcStrategy 构造函数或工厂方法
type funcStrategy struct {
	fn    reflect.Value
	label string
}

func (s *funcStrategy) describe() string { return s.label }

func (s *funcStrategy) params() []reflect.Type {
	ft := s.fn.Type()
	out := make([]reflect.Type, ft.NumIn())
	for i := range out {
		out[i] = ft.In(i)
	}
	return out
}

func (s *funcStrategy) variadic() bool { return s.fn.Type().IsVariadic() }

func (s *funcStrategy) invoke(args []reflect.Value) (any, error) {
	var results []reflect.Value
	if s.variadic() {
		results = s.fn.CallSlice(args)
	} else {
		results = s.fn.Call(args)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no values", s.label)
	}

	// 检查 error
	if len(results) > 1 {
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}

	// 检查 nil
	first := results[0]
	switch first.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if first.IsNil() {
			return nil, fmt.Errorf("%s returned nil instance", s.label)
		}
	}
	return first.Interface(), nil
}

// supplierStrategy 无参 supplier
type supplierStrategy struct {
	fn func() (any, error)
}

func (s *supplierStrategy) describe() string       { return "supplier" }
func (s *supplierStrategy) params() []reflect.Type { return nil }
func (s *supplierStrategy) variadic() bool         { return false }
func (s *supplierStrategy) invoke([]reflect.Value) (any, error) {
	obj, err := s.fn()
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("supplier returned nil instance")
	}
	return obj, nil
}

// zeroValueStrategy 指针结构体的零值构造
type zeroValueStrategy struct {
	typ reflect.Type
}

func (s *zeroValueStrategy) describe() string       { return fmt.Sprintf("new(%v)", s.typ.Elem()) }
func (s *zeroValueStrategy) params() []reflect.Type { return nil }
func (s *zeroValueStrategy) variadic() bool         { return false }
func (s *zeroValueStrategy) invoke([]reflect.Value) (any, error) {
	return reflect.New(s.typ.Elem()).Interface(), nil
}

// instantiate 选择构造策略、解析参数并创建原始实例
func (f *Factory) instantiate(ch *chain, name string, def *Definition) (any, error) {
	candidates, err := f.strategies(ch, name, def)
	if err != nil {
		return nil, err
	}
	strategy, err := f.selectStrategy(name, def, candidates)
	if err != nil {
		return nil, err
	}

	args, err := f.resolveArgs(ch, name, def, strategy)
	if err != nil {
		return nil, err
	}

	obj, err := invokeStrategy(strategy, args)
	if err != nil {
		return nil, &BeanInstantiationError{Bean: name, Creator: strategy.describe(), Err: err}
	}
	if def.Type != nil && !reflect.TypeOf(obj).AssignableTo(def.Type) {
		return nil, &BeanInstantiationError{Bean: name, Creator: strategy.describe(),
			Err: &TypeMismatchError{Bean: name, Required: def.Type, Actual: reflect.TypeOf(obj)}}
	}
	return obj, nil
}

func invokeStrategy(s constructionStrategy, args []reflect.Value) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			obj, err = nil, panicError(r)
		}
	}()
	return s.invoke(args)
}

// strategies 返回定义声明的候选构造策略
func (f *Factory) strategies(ch *chain, name string, def *Definition) ([]constructionStrategy, error) {
	switch {
	case def.Supplier != nil:
		return []constructionStrategy{&supplierStrategy{fn: def.Supplier}}, nil

	case def.FactoryMethod != "":
		declaring, err := f.getBean(ch, def.FactoryBean)
		if err != nil {
			return nil, fmt.Errorf("factory bean '%s': %w", def.FactoryBean, err)
		}
		f.singletons.registerDependent(f.transformedName(def.FactoryBean), name)
		method := reflect.ValueOf(declaring).MethodByName(def.FactoryMethod)
		if !method.IsValid() {
			return nil, &BeanInstantiationError{Bean: name,
				Err: fmt.Errorf("factory method %s not found on %T", def.FactoryMethod, declaring)}
		}
		if err := checkReturns(method.Type()); err != nil {
			return nil, &BeanInstantiationError{Bean: name,
				Err: fmt.Errorf("factory method %s: %w", def.FactoryMethod, err)}
		}
		return []constructionStrategy{&funcStrategy{fn: method,
			label: fmt.Sprintf("factory method %s.%s", def.FactoryBean, def.FactoryMethod)}}, nil

	case len(def.Constructors) > 0:
		out := make([]constructionStrategy, len(def.Constructors))
		for i, ctor := range def.Constructors {
			out[i] = &funcStrategy{fn: reflect.ValueOf(ctor), label: fmt.Sprintf("constructor %v", reflect.TypeOf(ctor))}
		}
		return out, nil
	}

	t := def.Type
	if t == nil && def.TypeName != "" {
		return nil, &BeanInstantiationError{Bean: name,
			Err: fmt.Errorf("cannot resolve type name %q", def.TypeName)}
	}
	if t != nil && t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		return []constructionStrategy{&zeroValueStrategy{typ: t}}, nil
	}
	return nil, &BeanInstantiationError{Bean: name,
		Err: fmt.Errorf("no construction strategy for type %v", t)}
}

// selectStrategy 多个构造函数时，选择参数全部可解析且参数最多的那个
func (f *Factory) selectStrategy(name string, def *Definition, candidates []constructionStrategy) (constructionStrategy, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	var best []constructionStrategy
	bestCount := -1
	for _, c := range candidates {
		if !f.argsResolvable(name, def, c) {
			continue
		}
		n := len(c.params())
		switch {
		case n > bestCount:
			best, bestCount = []constructionStrategy{c}, n
		case n == bestCount:
			best = append(best, c)
		}
	}

	switch len(best) {
	case 0:
		// 都不满足时用第一个，让参数解析给出具体错误
		return candidates[0], nil
	case 1:
		return best[0], nil
	}
	names := make([]string, len(best))
	for i, c := range best {
		names[i] = c.describe()
	}
	return nil, &AmbiguousConstructorError{Bean: name, Candidates: names}
}

// argAt 第 i 个参数的来源，未声明时自动装配
func argAt(def *Definition, i int) Arg {
	if i < len(def.Args) {
		return def.Args[i]
	}
	return Auto()
}

// argsResolvable 不创建任何 bean 地判断参数能否全部解析
func (f *Factory) argsResolvable(name string, def *Definition, s constructionStrategy) bool {
	params := s.params()
	if len(def.Args) > len(params) {
		return false
	}
	for i, pt := range params {
		a := argAt(def, i)
		switch a.Kind {
		case ArgValue:
			if _, err := convertValue(a.Value, pt); err != nil {
				return false
			}
		case ArgRef:
			if !a.Optional && !f.ContainsBean(a.Ref) {
				return false
			}
		default:
			t := a.Type
			if t == nil {
				t = pt
			}
			if a.Optional || isCollectionType(t) {
				continue
			}
			if len(f.candidateNames(name, t)) == 0 && f.resolvableFor(t) == nil {
				return false
			}
		}
	}
	return true
}

// resolveArgs 依次解析构造参数
func (f *Factory) resolveArgs(ch *chain, name string, def *Definition, s constructionStrategy) ([]reflect.Value, error) {
	params := s.params()
	if len(def.Args) > len(params) {
		return nil, &BeanInstantiationError{Bean: name, Creator: s.describe(),
			Err: fmt.Errorf("%d arguments given but %s takes %d", len(def.Args), s.describe(), len(params))}
	}
	args := make([]reflect.Value, len(params))
	for i, pt := range params {
		v, err := f.resolveArg(ch, name, argAt(def, i), pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%v) of %s: %w", i, pt, s.describe(), err)
		}
		args[i] = v
	}
	return args, nil
}

// resolveArg 把一个 Arg 解析为 target 类型的值
func (f *Factory) resolveArg(ch *chain, requester string, a Arg, target reflect.Type) (reflect.Value, error) {
	switch a.Kind {
	case ArgValue:
		return convertValue(a.Value, target)

	case ArgRef:
		if a.Optional && !f.ContainsBean(a.Ref) {
			return reflect.Zero(target), nil
		}
		obj, err := f.getBean(ch, a.Ref)
		if err != nil {
			return reflect.Value{}, err
		}
		f.singletons.registerDependent(f.transformedName(a.Ref), requester)
		return assignable(a.Ref, obj, target)

	default:
		t := a.Type
		if t == nil {
			t = target
		}
		res, err := f.resolve(ch, requester, Dependency{Type: t, Name: a.Hint, Optional: a.Optional})
		if err != nil {
			return reflect.Value{}, err
		}
		if !res.Present {
			return reflect.Zero(target), nil
		}
		return assignable(res.Name, res.Value, target)
	}
}

// assignable 检查实例能否赋给 target
func assignable(name string, obj any, target reflect.Type) (reflect.Value, error) {
	if obj == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(obj)
	if !v.Type().AssignableTo(target) {
		return reflect.Value{}, &TypeMismatchError{Bean: name, Required: target, Actual: v.Type()}
	}
	return v, nil
}
