package scheduling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
)

type cleanupTask struct {
	runs atomic.Int32
}

func (t *cleanupTask) Run(context.Context) error {
	t.runs.Add(1)
	return nil
}

type reportTask struct {
	cleanupTask
}

func (*reportTask) CronSpec() string { return "0 3 * * *" }

type notATask struct{}

type Counter struct {
	hits atomic.Int32
}

// runJob 直接执行调度链包装后的任务，不等待调度时间
func runJob(t *testing.T, p *Processor, name string) {
	t.Helper()
	p.mu.RLock()
	id, ok := p.jobs[name]
	p.mu.RUnlock()
	require.True(t, ok, "job %s not registered", name)
	p.cron.Entry(id).WrappedJob.Run()
}

func newScheduler(t *testing.T, opts ...Option) (*di.Factory, *Processor) {
	t.Helper()
	f := di.NewFactory()
	p, err := Enable(f, opts...)
	require.NoError(t, err)
	return f, p
}

func TestScheduledBeanRegistersJob(t *testing.T) {
	f, p := newScheduler(t)
	require.NoError(t, di.Register[*cleanupTask](f, "cleanup", WithCron("@every 1m")))
	require.NoError(t, di.Register[*reportTask](f, "report"))

	task, err := di.ResolveNamed[*cleanupTask](f, "cleanup")
	require.NoError(t, err)
	_, err = f.GetBean("report")
	require.NoError(t, err)

	jobs := p.Jobs()
	assert.Contains(t, jobs, "cleanup")
	assert.Contains(t, jobs, "report")

	runJob(t, p, "cleanup")
	assert.Equal(t, int32(1), task.runs.Load())

	// 销毁 bean 时移除任务
	f.DestroySingleton("cleanup")
	assert.NotContains(t, p.Jobs(), "cleanup")
}

func TestScheduleRequiresTask(t *testing.T) {
	f, _ := newScheduler(t)
	require.NoError(t, di.Register[*notATask](f, "bad", WithCron("@every 1m")))

	_, err := f.GetBean("bad")
	assert.ErrorContains(t, err, "does not implement Task")
}

func TestScheduleIgnoresPrototypes(t *testing.T) {
	f, p := newScheduler(t)
	require.NoError(t, di.Register[*cleanupTask](f, "cleanup", WithCron("@every 1m"), di.WithPrototype()))

	_, err := f.GetBean("cleanup")
	require.NoError(t, err)
	assert.Empty(t, p.Jobs())
}

func TestInvalidSpec(t *testing.T) {
	f, _ := newScheduler(t)
	require.NoError(t, di.Register[*cleanupTask](f, "cleanup", WithCron("whenever")))

	_, err := f.GetBean("cleanup")
	assert.ErrorContains(t, err, "whenever")
}

func TestSpecPlaceholders(t *testing.T) {
	cfg := config.FromMap(map[string]any{"jobs": map[string]any{"cleanup": "@every 10m"}})
	resolver := config.NewPlaceholderProcessor(cfg)
	f, p := newScheduler(t, WithSpecResolver(resolver.Resolve))
	require.NoError(t, di.Register[*cleanupTask](f, "cleanup", WithCron("${jobs.cleanup}")))
	require.NoError(t, di.Register[*reportTask](f, "report", WithCron("${jobs.report:@daily}")))

	_, err := f.GetBean("cleanup")
	require.NoError(t, err)
	_, err = f.GetBean("report")
	require.NoError(t, err)
	assert.Len(t, p.Jobs(), 2)

	require.NoError(t, di.Register[*cleanupTask](f, "broken", WithCron("${jobs.missing}")))
	_, err = f.GetBean("broken")
	assert.Error(t, err)
}

func TestAddJobVariants(t *testing.T) {
	f, p := newScheduler(t)
	require.NoError(t, di.Register[*Counter](f, "counter"))

	var plain atomic.Int32
	require.NoError(t, p.AddJob("@hourly", "plain", func() { plain.Add(1) }))
	require.NoError(t, p.AddJob("@hourly", "withCtx", func(ctx context.Context) error {
		assert.NotNil(t, ctx)
		return nil
	}))
	require.NoError(t, p.AddJob("@hourly", "injected", func(ctx context.Context, c *Counter) error {
		c.hits.Add(1)
		return errors.New("logged, not fatal")
	}))

	runJob(t, p, "plain")
	runJob(t, p, "withCtx")
	runJob(t, p, "injected")
	runJob(t, p, "injected")

	assert.Equal(t, int32(1), plain.Load())
	c, err := di.ResolveNamed[*Counter](f, "counter")
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.hits.Load())

	assert.ErrorContains(t, p.AddJob("@hourly", "plain", func() {}), "already registered")
	assert.Error(t, p.AddJob("@hourly", "notFunc", 42))
	assert.Error(t, p.AddJob("@hourly", "badReturn", func() int { return 1 }))
}

func TestPanickingJobIsRecovered(t *testing.T) {
	_, p := newScheduler(t)
	require.NoError(t, p.AddJob("@hourly", "panics", func() { panic("boom") }))
	assert.NotPanics(t, func() { runJob(t, p, "panics") })
}

func TestStartStop(t *testing.T) {
	_, p := newScheduler(t)
	require.NoError(t, p.AddJob("@hourly", "noop", func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return !p.Jobs()["noop"].IsZero()
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.NoError(t, p.Stop(context.Background()))
	// 重复停止无副作用
	assert.NoError(t, p.Stop(context.Background()))
}
