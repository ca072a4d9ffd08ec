package di

import (
	"fmt"
	"reflect"
)

// FactoryBean 自身是 bean，但按名称请求时返回它生产的对象。
// 用 "&name" 可以取到 FactoryBean 本身。
type FactoryBean interface {
	// Object 返回产物
	Object() (any, error)
	// ObjectType 产物类型，事先未知时返回 nil
	ObjectType() reflect.Type
	// IsSingleton 产物是否只创建一次并缓存
	IsSingleton() bool
}

var factoryBeanType = TypeOf[FactoryBean]()

// isFactoryBean 不实例化地判断 name 是否为 FactoryBean
func (f *Factory) isFactoryBean(name string) bool {
	if obj, ok := f.singletons.get(name); ok {
		_, isFB := obj.(FactoryBean)
		return isFB
	}
	def, err := f.mergedDefinition(name)
	if err != nil {
		if f.parent != nil && !f.Registry.Contains(name) {
			return f.parent.isFactoryBean(name)
		}
		return false
	}
	t := f.predictType(name, def)
	return t != nil && t.Implements(factoryBeanType)
}

// objectForInstance 处理 FactoryBean 解引用：
// "&name" 要求实例是 FactoryBean 并原样返回；普通名称返回其产物。
func (f *Factory) objectForInstance(ch *chain, obj any, name, beanName string) (any, error) {
	fb, isFB := obj.(FactoryBean)
	if isFactoryDereference(name) {
		if !isFB {
			return nil, &TypeMismatchError{Bean: name, Required: factoryBeanType, Actual: reflect.TypeOf(obj)}
		}
		return obj, nil
	}
	if !isFB {
		return obj, nil
	}

	var (
		product any
		err     error
	)
	if fb.IsSingleton() && f.singletons.contains(beanName) {
		product, err = f.singletons.productOrCreate(beanName, ch, f.Settings().CreationWaitTimeout, func() (any, error) {
			return f.productFromFactoryBean(ch, fb, beanName)
		})
	} else {
		product, err = f.productFromFactoryBean(ch, fb, beanName)
	}
	if err != nil {
		return nil, wrapCreation(beanName, err)
	}
	return product, nil
}

func (f *Factory) productFromFactoryBean(ch *chain, fb FactoryBean, beanName string) (product any, err error) {
	defer func() {
		if r := recover(); r != nil {
			product, err = nil, &BeanInitializationError{Bean: beanName, Stage: StageFactoryBean, Err: panicError(r)}
		}
	}()

	product, err = fb.Object()
	if err != nil {
		return nil, &BeanInitializationError{Bean: beanName, Stage: StageFactoryBean, Err: err}
	}
	if product == nil {
		return nil, &BeanInitializationError{Bean: beanName, Stage: StageFactoryBean,
			Err: fmt.Errorf("FactoryBean %T returned nil object", fb)}
	}
	if t := fb.ObjectType(); t != nil && !reflect.TypeOf(product).AssignableTo(t) {
		return nil, &BeanInitializationError{Bean: beanName, Stage: StageFactoryBean,
			Err: &TypeMismatchError{Bean: beanName, Required: t, Actual: reflect.TypeOf(product)}}
	}

	def, derr := f.mergedDefinition(beanName)
	if derr == nil && def.Synthetic {
		return product, nil
	}
	return f.applyAfterInit(beanName, product)
}
