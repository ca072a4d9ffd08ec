package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gocrud/ioc/di"
)

// Processor 记录 bean 创建次数、创建耗时与销毁次数。
// 创建耗时从实例化前到初始化后处理结束；同名 bean 并发创建时只保留最近一次的起点。
type Processor struct {
	registry *prometheus.Registry

	Creations    *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Destructions *prometheus.CounterVec

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewProcessor 创建处理器并把指标注册到 reg；reg 为 nil 时使用处理器自己的 Registry
func NewProcessor(namespace string, reg prometheus.Registerer) (*Processor, error) {
	p := &Processor{
		Creations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bean_creations_total",
			Help:      "Total number of beans created by the container",
		}, []string{"bean"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bean_creation_duration_seconds",
			Help:      "Time from instantiation to the end of initialization",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"bean"}),
		Destructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bean_destructions_total",
			Help:      "Total number of singleton beans destroyed",
		}, []string{"bean"}),
		starts: make(map[string]time.Time),
	}

	if reg == nil {
		p.registry = prometheus.NewRegistry()
		reg = p.registry
	}
	for _, c := range []prometheus.Collector{p.Creations, p.Duration, p.Destructions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Registry 处理器自己的 Registry；使用外部 Registerer 时为 nil
func (p *Processor) Registry() *prometheus.Registry {
	return p.registry
}

// Order 排在最前；记录的耗时不包含排在它之后的初始化后处理器
func (p *Processor) Order() int {
	return di.HighestPrecedence
}

// BeforeInstantiation 记录创建起点，不会短路创建
func (p *Processor) BeforeInstantiation(name string, _ *di.Definition) (any, error) {
	p.mu.Lock()
	p.starts[name] = time.Now()
	p.mu.Unlock()
	return nil, nil
}

func (p *Processor) AfterInstantiation(string, any) (bool, error) {
	return true, nil
}

// AfterInitialization 计数并记录耗时
func (p *Processor) AfterInitialization(name string, _ any) (any, error) {
	p.Creations.WithLabelValues(name).Inc()

	p.mu.Lock()
	start, ok := p.starts[name]
	delete(p.starts, name)
	p.mu.Unlock()
	if ok {
		p.Duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return nil, nil
}

func (p *Processor) RequiresDestruction(any) bool {
	return true
}

// BeforeDestruction 计数
func (p *Processor) BeforeDestruction(name string, _ any) error {
	p.Destructions.WithLabelValues(name).Inc()
	return nil
}
