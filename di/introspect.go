package di

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

var contextType = TypeOf[context.Context]()

type introspectKind uint8

const (
	kindMethod introspectKind = iota
	kindProperty
)

type introspectKey struct {
	typ  reflect.Type
	name string
	kind introspectKind
}

// lifecycleMethod 可作为初始化或销毁方法调用的无参方法
type lifecycleMethod struct {
	index   int
	withCtx bool
	withErr bool
}

func (m *lifecycleMethod) call(v reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	var args []reflect.Value
	if m.withCtx {
		args = []reflect.Value{reflect.ValueOf(context.Background())}
	}
	out := v.Method(m.index).Call(args)
	if m.withErr && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

// lookupMethod 查找签名为 func()、func() error 或 func(context.Context) error 的方法
func (f *Factory) lookupMethod(t reflect.Type, name string) *lifecycleMethod {
	key := introspectKey{typ: t, name: name, kind: kindMethod}
	if v, ok := f.introspection.Load(key); ok {
		return v.(*lifecycleMethod)
	}

	var found *lifecycleMethod
	if m, ok := t.MethodByName(name); ok {
		mt := m.Type // 包含接收者
		in, out := mt.NumIn()-1, mt.NumOut()
		withCtx := in == 1 && mt.In(1) == contextType
		withErr := out == 1 && mt.Out(0) == errorType
		if (in == 0 || withCtx) && (out == 0 || withErr) {
			found = &lifecycleMethod{index: m.Index, withCtx: withCtx, withErr: withErr}
		}
	}
	f.introspection.Store(key, found)
	return found
}

// propertyTarget 属性写入点：Set<Name> 方法或导出字段
type propertyTarget struct {
	setter      int
	setterErr   bool
	field       []int
	typ         reflect.Type
	description string
}

func (p *propertyTarget) set(bean reflect.Value, val reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if p.setter >= 0 {
		out := bean.Method(p.setter).Call([]reflect.Value{val})
		if p.setterErr && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
	bean.Elem().FieldByIndex(p.field).Set(val)
	return nil
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// lookupProperty 优先使用 Set<Name>(v) 方法，其次使用导出字段 <Name>
func (f *Factory) lookupProperty(t reflect.Type, name string) (*propertyTarget, error) {
	key := introspectKey{typ: t, name: name, kind: kindProperty}
	if v, ok := f.introspection.Load(key); ok {
		return v.(*propertyTarget), nil
	}

	prop := exportedName(name)
	target, err := findPropertyTarget(t, prop)
	if err != nil {
		return nil, err
	}
	f.introspection.Store(key, target)
	return target, nil
}

func findPropertyTarget(t reflect.Type, prop string) (*propertyTarget, error) {
	if m, ok := t.MethodByName("Set" + prop); ok {
		mt := m.Type
		if mt.NumIn() == 2 && (mt.NumOut() == 0 || (mt.NumOut() == 1 && mt.Out(0) == errorType)) {
			return &propertyTarget{
				setter:      m.Index,
				setterErr:   mt.NumOut() == 1,
				typ:         mt.In(1),
				description: "method Set" + prop,
			}, nil
		}
	}
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		if sf, ok := t.Elem().FieldByName(prop); ok && sf.IsExported() {
			return &propertyTarget{setter: -1, field: sf.Index, typ: sf.Type, description: "field " + prop}, nil
		}
	}
	return nil, fmt.Errorf("no writable property %s on %v (need method Set%s or exported field %s)", prop, t, prop, prop)
}
