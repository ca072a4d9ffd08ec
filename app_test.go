package ioc_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/scheduling"
)

type store struct {
	DSN string
}

type sweeper struct {
	Store *store `di:""`
	runs  atomic.Int32
}

func (s *sweeper) Run(context.Context) error {
	s.runs.Add(1)
	return nil
}

func newConfig() config.Configuration {
	return config.FromMap(map[string]any{
		"db":   map[string]any{"dsn": "file::memory:"},
		"jobs": map[string]any{"sweep": "@every 5m"},
	})
}

func TestBuilderInstallsFeatures(t *testing.T) {
	c, err := ioc.NewApplicationBuilder().
		With(core.WithConfiguration(newConfig()),
			core.WithDefinitions(func(f *di.Factory) error {
				if err := di.Register[*store](f, "store", di.WithProperty("DSN", "${db.dsn}")); err != nil {
					return err
				}
				return di.Register[*sweeper](f, "sweeper", scheduling.WithCron("${jobs.sweep:@hourly}"))
			})).
		Use(ioc.Placeholders(), ioc.Scheduling(), ioc.Metrics("ioc", nil)).
		Build()
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))
	defer func() { assert.NoError(t, c.Close(context.Background())) }()

	s, err := di.ResolveNamed[*store](c.Factory, "store")
	require.NoError(t, err)
	assert.Equal(t, "file::memory:", s.DSN)

	scheduler, err := di.ResolveNamed[*scheduling.Processor](c.Factory, scheduling.SchedulerBeanName)
	require.NoError(t, err)
	assert.Contains(t, scheduler.Jobs(), "sweeper")

	reg, err := di.ResolveNamed[*prometheus.Registry](c.Factory, ioc.MetricsRegistryBeanName)
	require.NoError(t, err)
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "ioc_bean_creations_total")
	assert.Contains(t, names, "ioc_singletons")
}

func TestMetricsWithExternalRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := ioc.NewApplicationBuilder().Use(ioc.Metrics("ioc", reg)).Build()
	require.NoError(t, err)
	assert.False(t, c.ContainsBean(ioc.MetricsRegistryBeanName))
}

func TestBuildFailsOnFeatureError(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := ioc.NewApplicationBuilder().Use(ioc.Metrics("ioc", reg), ioc.Metrics("ioc", reg)).Build()
	assert.Error(t, err)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	b := ioc.NewApplicationBuilder().
		With(core.WithShutdownTimeout(time.Second)).
		Use(ioc.Scheduling())
	assert.NoError(t, ioc.Run(ctx, b))
}

func TestNewLogger(t *testing.T) {
	logger, err := ioc.NewLogger(nil, "test")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	zapCfg := config.FromMap(map[string]any{"logging": map[string]any{"provider": "zap", "level": "warn"}})
	logger, err = ioc.NewLogger(zapCfg, "test")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	quiet := config.FromMap(map[string]any{"logging": map[string]any{
		"level":      "error",
		"categories": map[string]any{"di": "debug"},
	}})
	logger, err = ioc.NewLogger(quiet, "di")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(logging.LogLevelDebug))
	assert.False(t, logger.WithCategory("core").Enabled(logging.LogLevelWarn))

	bad := config.FromMap(map[string]any{"logging": map[string]any{"provider": "syslog"}})
	_, err = ioc.NewLogger(bad, "test")
	assert.Error(t, err)
}
