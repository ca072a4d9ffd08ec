package ioc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/metrics"
	"github.com/gocrud/ioc/scheduling"
)

// Scheduling 启用定时任务；带 scheduling.WithCron 属性或实现 scheduling.Scheduled 的单例会被注册。
// 调度器作为托管服务随上下文启动与停止。
func Scheduling(opts ...scheduling.Option) Feature {
	return func(ctx *core.ApplicationContext) error {
		base := []scheduling.Option{scheduling.WithLogger(ctx.Logger().WithCategory("scheduling"))}
		if cfg := ctx.Configuration(); cfg != nil {
			base = append(base, scheduling.WithSpecResolver(config.NewPlaceholderProcessor(cfg).Resolve))
		}
		_, err := scheduling.Enable(ctx.Factory, append(base, opts...)...)
		return err
	}
}

// Metrics 启用 bean 创建指标与容器状态采集；reg 为 nil 时指标注册到处理器自己的 Registry，
// 该 Registry 以单例 "metricsRegistry" 暴露。
func Metrics(namespace string, reg prometheus.Registerer) Feature {
	return func(ctx *core.ApplicationContext) error {
		p, err := metrics.Enable(ctx.Factory, namespace, ctx.ID(), reg)
		if err != nil {
			return err
		}
		if p.Registry() != nil {
			return ctx.RegisterSingleton(MetricsRegistryBeanName, p.Registry())
		}
		return nil
	}
}

// MetricsRegistryBeanName Metrics 使用内置 Registry 时注册的 bean 名称
const MetricsRegistryBeanName = "metricsRegistry"

// Placeholders 把配置占位符处理器加入上下文，定义中的 ${key:default} 在创建 bean 之前被替换
func Placeholders() Feature {
	return func(ctx *core.ApplicationContext) error {
		cfg := ctx.Configuration()
		if cfg == nil {
			return nil
		}
		return ctx.RegisterSingleton("placeholderProcessor", config.NewPlaceholderProcessor(cfg))
	}
}

// Databases 为配置节 "databases" 下的每个子节注册一个 *gorm.DB；名为 default 的连接优先注入
func Databases(migrate ...any) Feature {
	return func(ctx *core.ApplicationContext) error {
		cfg := ctx.Configuration()
		if cfg == nil {
			return nil
		}
		return database.RegisterFromConfig(ctx.Factory, cfg, migrate...)
	}
}
