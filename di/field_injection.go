package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// FieldInjection 包含需要注入的结构体字段的元数据。
type FieldInjection struct {
	Index       []int
	Name        string // 字段名
	Type        reflect.Type
	Optional    bool
	ServiceName string // 注入的 bean 名称，为空时按类型
}

// InjectionSchema 一个结构体类型预计算的注入元数据。
type InjectionSchema struct {
	Fields []FieldInjection
}

// FieldInjectionProcessor 按 `di` 标签注入结构体字段。
//
// 标签格式："name,optional"。name 为空时按字段类型装配；
// "di:\"?\"" 或 "di:\"optional\"" 表示按类型的可选注入。
type FieldInjectionProcessor struct {
	schemas sync.Map // reflect.Type -> *InjectionSchema
}

// NewFieldInjectionProcessor 创建字段注入处理器，容器默认已注册一个
func NewFieldInjectionProcessor() *FieldInjectionProcessor {
	return &FieldInjectionProcessor{}
}

// Order 在大多数用户处理器之前执行
func (p *FieldInjectionProcessor) Order() int { return LowestPrecedence - 2 }

func (p *FieldInjectionProcessor) ProcessProperties(inj Injector, name string, bean any, props []Property) ([]Property, error) {
	v := reflect.ValueOf(bean)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return props, nil
	}
	schema, err := p.schema(v.Type())
	if err != nil {
		return nil, err
	}

	elem := v.Elem()
	for _, fi := range schema.Fields {
		val, ok, err := injectField(inj, fi)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fi.Name, err)
		}
		if ok {
			elem.FieldByIndex(fi.Index).Set(val)
		}
	}
	return props, nil
}

func injectField(inj Injector, fi FieldInjection) (reflect.Value, bool, error) {
	if fi.ServiceName != "" {
		if fi.Optional && !inj.ContainsBean(fi.ServiceName) {
			return reflect.Value{}, false, nil
		}
		obj, err := inj.GetBean(fi.ServiceName)
		if err != nil {
			return reflect.Value{}, false, err
		}
		val, err := assignable(fi.ServiceName, obj, fi.Type)
		return val, err == nil, err
	}

	res, err := inj.ResolveDependency(Dependency{Type: fi.Type, Name: fi.Name, Optional: fi.Optional})
	if err != nil || !res.Present {
		return reflect.Value{}, false, err
	}
	val, err := assignable(res.Name, res.Value, fi.Type)
	return val, err == nil, err
}

// schema 返回类型的注入元数据（带缓存）
func (p *FieldInjectionProcessor) schema(t reflect.Type) (*InjectionSchema, error) {
	if s, ok := p.schemas.Load(t); ok {
		return s.(*InjectionSchema), nil
	}
	s, err := analyzeStruct(t)
	if err != nil {
		return nil, err
	}
	actual, _ := p.schemas.LoadOrStore(t, s)
	return actual.(*InjectionSchema), nil
}

func analyzeStruct(typ reflect.Type) (*InjectionSchema, error) {
	// 解包指针
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	schema := &InjectionSchema{}
	if typ.Kind() != reflect.Struct {
		return schema, nil
	}

	for _, field := range reflect.VisibleFields(typ) {
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field %s.%s has a di tag but is not exported", typ.Name(), field.Name)
		}

		// 解析 tag: "name,option1,option2"
		parts := strings.Split(tagValue, ",")
		name := strings.TrimSpace(parts[0])
		isOptional := false

		// 处理 "di:?" 或 "di:optional" 的情况，此时 name 应为空
		if name == "?" || name == "optional" {
			name = ""
			isOptional = true
		}
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			if part == "optional" || part == "?" {
				isOptional = true
			}
		}

		schema.Fields = append(schema.Fields, FieldInjection{
			Index:       field.Index,
			Name:        field.Name,
			Type:        field.Type,
			Optional:    isOptional,
			ServiceName: name,
		})
	}
	return schema, nil
}
