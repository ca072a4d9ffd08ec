package ioc

import (
	"github.com/gocrud/ioc/core"
)

// Feature 在应用上下文创建之后、刷新之前安装功能
type Feature func(ctx *core.ApplicationContext) error

// ApplicationBuilder 收集上下文选项与功能，Build 时一次性创建
type ApplicationBuilder struct {
	options  []core.Option
	features []Feature
}

// NewApplicationBuilder 创建应用程序构建器
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{}
}

// With 追加上下文选项
func (b *ApplicationBuilder) With(opts ...core.Option) *ApplicationBuilder {
	b.options = append(b.options, opts...)
	return b
}

// Use 追加功能，按追加顺序安装
func (b *ApplicationBuilder) Use(features ...Feature) *ApplicationBuilder {
	b.features = append(b.features, features...)
	return b
}

// Build 创建上下文并安装功能，不会刷新
func (b *ApplicationBuilder) Build() (*core.ApplicationContext, error) {
	ctx, err := core.NewApplicationContext(b.options...)
	if err != nil {
		return nil, err
	}
	for _, feature := range b.features {
		if err := feature(ctx); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}
