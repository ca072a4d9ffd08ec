package ioc

import (
	"context"
)

// Run 创建上下文并运行到收到退出信号、ctx 取消或托管服务异常退出，然后优雅关闭
func Run(ctx context.Context, b *ApplicationBuilder) error {
	c, err := b.Build()
	if err != nil {
		return err
	}
	return c.Run(ctx)
}
