package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrAbstractDefinition 试图实例化 abstract 定义
	ErrAbstractDefinition = errors.New("di: definition is abstract")
	// ErrDefinitionFrozen 定义已被用于创建 bean，不允许再修改
	ErrDefinitionFrozen = errors.New("di: definition is frozen")
	// ErrFactoryDestroyed 容器正在销毁或已销毁
	ErrFactoryDestroyed = errors.New("di: factory is being destroyed")

	errNoEnvironment = errors.New("bean requires an environment but none is configured")
)

// Stage 标识生命周期中出错的阶段
type Stage string

const (
	StageInstantiate Stage = "instantiate"
	StagePopulate    Stage = "populate"
	StageAware       Stage = "aware"
	StageBeforeInit  Stage = "before-init"
	StageInit        Stage = "init"
	StageAfterInit   Stage = "after-init"
	StageFactoryBean Stage = "factory-bean"
	StageEarlyRef    Stage = "early-reference"
)

// NotFoundError 注册表中不存在该名称
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("di: no definition named '%s'", e.Name)
}

// NoSuchDefinitionError 按名称或类型都找不到可用的 bean
type NoSuchDefinitionError struct {
	Name   string
	Type   reflect.Type
	Reason string
}

func (e *NoSuchDefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("di: no bean")
	if e.Name != "" {
		fmt.Fprintf(&b, " named '%s'", e.Name)
	}
	if e.Type != nil {
		fmt.Fprintf(&b, " of type %v", e.Type)
	}
	b.WriteString(" available")
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is 让 errors.Is(err, &NotFoundError{}) 对按名称的缺失同样成立
func (e *NoSuchDefinitionError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok && e.Name != ""
}

// DuplicateDefinitionError 名称已存在且不允许覆盖
type DuplicateDefinitionError struct {
	Name    string
	IsAlias bool
}

func (e *DuplicateDefinitionError) Error() string {
	if e.IsAlias {
		return fmt.Sprintf("di: cannot register definition '%s': name is already used as an alias", e.Name)
	}
	return fmt.Sprintf("di: cannot register definition '%s': a definition with that name already exists and overriding is disabled", e.Name)
}

// InvalidAliasError 别名冲突或形成环
type InvalidAliasError struct {
	Alias  string
	Name   string
	Reason string
}

func (e *InvalidAliasError) Error() string {
	return fmt.Sprintf("di: invalid alias '%s' for '%s': %s", e.Alias, e.Name, e.Reason)
}

// AmbiguousDependencyError 多个候选且无法消歧
type AmbiguousDependencyError struct {
	Type       reflect.Type
	Candidates []string
	Reason     string
}

func (e *AmbiguousDependencyError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "expected single matching bean"
	}
	return fmt.Sprintf("di: no unique bean of type %v: %s but found %d: %s",
		e.Type, reason, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// AmbiguousConstructorError 多个构造函数同样满足条件
type AmbiguousConstructorError struct {
	Bean       string
	Candidates []string
}

func (e *AmbiguousConstructorError) Error() string {
	return fmt.Sprintf("di: ambiguous constructors for bean '%s': %s", e.Bean, strings.Join(e.Candidates, "; "))
}

// CircularReferenceError 创建过程中出现环
type CircularReferenceError struct {
	Bean  string
	Chain []string
	// Reason 为空时表示常规的“正在创建中”
	Reason string
}

func (e *CircularReferenceError) Error() string {
	msg := fmt.Sprintf("di: bean '%s' is currently in creation: unresolvable circular reference", e.Bean)
	if len(e.Chain) > 0 {
		msg += " (" + strings.Join(e.Chain, " -> ") + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// BeanInstantiationError 构造函数、工厂方法或 supplier 调用失败
type BeanInstantiationError struct {
	Bean    string
	Creator string
	Err     error
}

func (e *BeanInstantiationError) Error() string {
	if e.Creator != "" {
		return fmt.Sprintf("di: failed to instantiate bean '%s' via %s: %v", e.Bean, e.Creator, e.Err)
	}
	return fmt.Sprintf("di: failed to instantiate bean '%s': %v", e.Bean, e.Err)
}

func (e *BeanInstantiationError) Unwrap() error { return e.Err }

// BeanInitializationError 属性填充、aware、初始化或后置处理失败
type BeanInitializationError struct {
	Bean      string
	Stage     Stage
	Processor string
	Err       error
}

func (e *BeanInitializationError) Error() string {
	if e.Processor != "" {
		return fmt.Sprintf("di: initialization of bean '%s' failed in %s (processor %s): %v", e.Bean, e.Stage, e.Processor, e.Err)
	}
	return fmt.Sprintf("di: initialization of bean '%s' failed in %s: %v", e.Bean, e.Stage, e.Err)
}

func (e *BeanInitializationError) Unwrap() error { return e.Err }

// BeanCreationError 把依赖链上每一层的 bean 名称附加到根因上
type BeanCreationError struct {
	Bean string
	Err  error
}

func (e *BeanCreationError) Error() string {
	return fmt.Sprintf("di: error creating bean '%s': %v", e.Bean, e.Err)
}

func (e *BeanCreationError) Unwrap() error { return e.Err }

// Chain 返回从外到内的 bean 名称链
func (e *BeanCreationError) Chain() []string {
	var chain []string
	var err error = e
	for err != nil {
		if bce, ok := err.(*BeanCreationError); ok {
			chain = append(chain, bce.Bean)
			err = bce.Err
			continue
		}
		err = errors.Unwrap(err)
	}
	return chain
}

// TypeMismatchError 实例类型与期望类型不符
type TypeMismatchError struct {
	Bean     string
	Required reflect.Type
	Actual   reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("di: bean '%s' is %v, not assignable to %v", e.Bean, e.Actual, e.Required)
}

// wrapCreation 为错误加上 bean 名称；已是同名包装时不重复
func wrapCreation(name string, err error) error {
	if err == nil {
		return nil
	}
	var bce *BeanCreationError
	if errors.As(err, &bce) && bce.Bean == name {
		return err
	}
	return &BeanCreationError{Bean: name, Err: err}
}
