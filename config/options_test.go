package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

func TestOptionsReload(t *testing.T) {
	src := &switchingSource{data: map[string]any{"server": map[string]any{"host": "a", "port": 1}}}
	cfg, err := NewConfigurationBuilder().Add(src).Build()
	require.NoError(t, err)

	f := di.NewFactory()
	require.NoError(t, RegisterOptions[serverOptions](f, "serverOptions", cfg, "server"))

	opts, err := di.Resolve[*Options[serverOptions]](f)
	require.NoError(t, err)
	assert.Equal(t, "a", opts.Value().Host)
	assert.Equal(t, "server", opts.Section())

	var changed []string
	var failures int
	opts.OnChange(func(v serverOptions) { changed = append(changed, v.Host) })
	opts.OnError(func(error) { failures++ })

	src.set(map[string]any{"server": map[string]any{"host": "b", "port": 2}})
	require.NoError(t, cfg.Reload())
	assert.Equal(t, "b", opts.Value().Host)

	// 校验失败时保留旧值
	src.set(map[string]any{"server": map[string]any{"port": 2}})
	require.NoError(t, cfg.Reload())
	assert.Equal(t, "b", opts.Value().Host)
	assert.Equal(t, []string{"b"}, changed)
	assert.Equal(t, 1, failures)
}

func TestRegisterSection(t *testing.T) {
	cfg := FromMap(map[string]any{"server": map[string]any{"host": "h", "port": 80}})
	f := di.NewFactory()
	require.NoError(t, RegisterSection[serverOptions](f, "server", cfg, "server"))

	s, err := di.ResolveNamed[*serverOptions](f, "server")
	require.NoError(t, err)
	assert.Equal(t, "h", s.Host)

	require.NoError(t, RegisterSection[serverOptions](f, "broken", cfg, "missing"))
	_, err = f.GetBean("broken")
	assert.Error(t, err)
}

func TestConfigurationIsEnvironment(t *testing.T) {
	var env di.Environment = FromMap(map[string]any{"a": "b"})
	assert.Equal(t, "b", env.Get("a"))
}
