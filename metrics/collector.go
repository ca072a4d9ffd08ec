package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gocrud/ioc/di"
)

// FactoryCollector 在采集时读取容器状态：定义数量与已缓存的单例数量
type FactoryCollector struct {
	factory     *di.Factory
	definitions *prometheus.Desc
	singletons  *prometheus.Desc
}

// NewFactoryCollector 创建容器状态采集器，contextID 作为 context 标签区分多个容器
func NewFactoryCollector(namespace, contextID string, f *di.Factory) *FactoryCollector {
	labels := prometheus.Labels{"context": contextID}
	return &FactoryCollector{
		factory: f,
		definitions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "bean_definitions"),
			"Number of registered bean definitions", nil, labels),
		singletons: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "singletons"),
			"Number of cached singleton instances", nil, labels),
	}
}

func (c *FactoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.definitions
	ch <- c.singletons
}

func (c *FactoryCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.definitions, prometheus.GaugeValue, float64(c.factory.Count()))
	ch <- prometheus.MustNewConstMetric(c.singletons, prometheus.GaugeValue, float64(len(c.factory.SingletonNames())))
}

// Enable 创建处理器与容器采集器，注册到 reg（为 nil 时使用处理器自己的 Registry），
// 并把处理器加入容器。
func Enable(f *di.Factory, namespace, contextID string, reg prometheus.Registerer) (*Processor, error) {
	p, err := NewProcessor(namespace, reg)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = p.Registry()
	}
	if err := reg.Register(NewFactoryCollector(namespace, contextID, f)); err != nil {
		return nil, err
	}
	if err := f.AddProcessor(p); err != nil {
		return nil, err
	}
	return p, nil
}
