package di

import (
	"fmt"
	"reflect"
)

// populate 属性填充：实例化后处理、属性处理器、定义中声明的属性
func (f *Factory) populate(ch *chain, name string, def *Definition, bean any) error {
	pl := f.procs.load()
	// 非 nil：处理器返回 nil 才表示跳过属性应用
	props := append([]Property{}, def.Properties...)

	if !def.Synthetic {
		for _, p := range pl.instAware {
			cont, err := p.AfterInstantiation(name, bean)
			if err != nil {
				return &BeanInitializationError{Bean: name, Stage: StagePopulate, Processor: processorName(p), Err: err}
			}
			if !cont {
				return nil
			}
		}
	}

	if len(pl.property) > 0 {
		inj := &injector{f: f, ch: ch, requester: name}
		for _, p := range pl.property {
			next, err := p.ProcessProperties(inj, name, bean, props)
			if err != nil {
				return &BeanInitializationError{Bean: name, Stage: StagePopulate, Processor: processorName(p), Err: err}
			}
			if next == nil {
				return nil
			}
			props = next
		}
	}

	return f.applyProperties(ch, name, bean, props)
}

// applyProperties 按声明顺序写入属性
func (f *Factory) applyProperties(ch *chain, name string, bean any, props []Property) error {
	if len(props) == 0 {
		return nil
	}
	bv := reflect.ValueOf(bean)
	for _, prop := range props {
		target, err := f.lookupProperty(bv.Type(), prop.Name)
		if err != nil {
			return &BeanInitializationError{Bean: name, Stage: StagePopulate, Err: err}
		}
		val, err := f.resolveArg(ch, name, prop.Arg, target.typ)
		if err != nil {
			return &BeanInitializationError{Bean: name, Stage: StagePopulate,
				Err: fmt.Errorf("property '%s': %w", prop.Name, err)}
		}
		if err := target.set(bv, val); err != nil {
			return &BeanInitializationError{Bean: name, Stage: StagePopulate,
				Err: fmt.Errorf("property '%s' via %s: %w", prop.Name, target.description, err)}
		}
	}
	return nil
}
