package di

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ArgKind 参数来源
type ArgKind int

const (
	// ArgAuto 按参数声明类型自动装配
	ArgAuto ArgKind = iota
	// ArgValue 显式值
	ArgValue
	// ArgRef 按名称引用另一个 bean
	ArgRef
	// ArgType 按类型引用（可带名称提示）
	ArgType
)

// Arg 描述一个构造参数或属性值的来源
type Arg struct {
	Kind     ArgKind
	Value    any
	Ref      string
	Type     reflect.Type
	Hint     string
	Optional bool
}

// Value 显式值参数
func Value(v any) Arg {
	return Arg{Kind: ArgValue, Value: v}
}

// Ref 按名称引用 bean
func Ref(name string) Arg {
	return Arg{Kind: ArgRef, Ref: name}
}

// RefType 按类型引用 bean
func RefType(t reflect.Type) Arg {
	return Arg{Kind: ArgType, Type: t}
}

// RefTypeOf 按类型 T 引用 bean
func RefTypeOf[T any]() Arg {
	return RefType(TypeOf[T]())
}

// Auto 占位：该位置按参数声明类型自动装配
func Auto() Arg {
	return Arg{Kind: ArgAuto}
}

// AsOptional 标记为可选；找不到候选时注入零值
func (a Arg) AsOptional() Arg {
	a.Optional = true
	return a
}

// Named 附加名称提示，用于多个候选时消歧
func (a Arg) Named(hint string) Arg {
	a.Hint = hint
	return a
}

func (a Arg) String() string {
	switch a.Kind {
	case ArgValue:
		return fmt.Sprintf("value(%v)", a.Value)
	case ArgRef:
		return "ref(" + a.Ref + ")"
	case ArgType:
		return fmt.Sprintf("type(%v)", a.Type)
	default:
		return "auto"
	}
}

// Property 属性赋值：Name -> Arg
type Property struct {
	Name string
	Arg  Arg
}

// convertValue 把显式值转换为目标类型。
// 支持直接赋值、可转换的基础类型、字符串到数值/布尔/时长以及 TextUnmarshaler。
func convertValue(v any, target reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(target), nil
	}
	val := reflect.ValueOf(v)
	if val.Type().AssignableTo(target) {
		return val, nil
	}

	if s, ok := v.(string); ok {
		return parseString(s, target)
	}

	if val.Type().ConvertibleTo(target) && sameKindFamily(val.Kind(), target.Kind()) {
		return val.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %T to %v", v, target)
}

func sameKindFamily(a, b reflect.Kind) bool {
	return kindFamily(a) != 0 && kindFamily(a) == kindFamily(b)
}

func kindFamily(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	}
	return 0
}

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = TypeOf[encoding.TextUnmarshaler]()
)

func parseString(s string, target reflect.Type) (reflect.Value, error) {
	if reflect.PointerTo(target).Implements(textUnmarshalerType) {
		ptr := reflect.New(target)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil
	}
	if target == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	}

	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, target.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, target.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), target.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	case reflect.Slice:
		if target.Elem().Kind() == reflect.String {
			parts := strings.Split(s, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return reflect.ValueOf(parts).Convert(target), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot convert string to %v", target)
	case reflect.Interface:
		if reflect.TypeOf(s).Implements(target) {
			out.Set(reflect.ValueOf(s))
			return out, nil
		}
		return reflect.Value{}, fmt.Errorf("cannot convert string to %v", target)
	default:
		return reflect.Value{}, fmt.Errorf("cannot convert string to %v", target)
	}
	return out, nil
}
