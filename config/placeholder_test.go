package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

func TestPlaceholderResolve(t *testing.T) {
	p := NewPlaceholderProcessor(FromMap(map[string]any{
		"db": map[string]any{
			"host": "localhost",
			"url":  "sqlite://${db.host}/app",
		},
		"env":  "prod",
		"loop": "${loop}",
	}))

	cases := map[string]string{
		"${db.host}":                "localhost",
		"${db.url}":                 "sqlite://localhost/app",
		"${missing:fallback}":       "fallback",
		"${missing:}":               "",
		"${missing:${db.host}}":     "localhost",
		"app-${env}.yaml":           "app-prod.yaml",
		"${env}/${db.host}":         "prod/localhost",
		"no placeholders":           "no placeholders",
		"unterminated ${db.host":    "unterminated ${db.host",
		"${missing:@every 1m}":      "@every 1m",
		"${missing:a:b}":            "a:b",
		"nested ${missing:${env}}!": "nested prod!",
	}
	for in, want := range cases {
		got, err := p.Resolve(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := p.Resolve("${missing}")
	assert.ErrorContains(t, err, "could not resolve placeholder 'missing'")

	_, err = p.Resolve("${loop}")
	assert.ErrorContains(t, err, "circular placeholder")

	p.IgnoreUnresolvable = true
	got, err := p.Resolve("x-${missing}")
	require.NoError(t, err)
	assert.Equal(t, "x-${missing}", got)
}

type dataSource struct {
	DSN      string
	PoolSize int
}

type dataSourceUser struct {
	DS *dataSource
}

func TestPlaceholderProcessorRewritesDefinitions(t *testing.T) {
	cfg := FromMap(map[string]any{
		"db": map[string]any{"dsn": "file:test.db", "pool": 8, "bean": "primaryDS"},
	})
	f := di.NewFactory()
	require.NoError(t, di.Register[*dataSource](f, "primaryDS",
		di.WithProperty("DSN", "${db.dsn}"),
		di.WithProperty("PoolSize", "${db.pool:4}")))
	require.NoError(t, di.Register[*dataSourceUser](f, "user",
		di.WithProperty("DS", di.Ref("${db.bean}"))))
	require.NoError(t, di.Register[*dataSource](f, "untouched"))

	require.NoError(t, NewPlaceholderProcessor(cfg).PostProcessDefinitions(f))

	ds, err := di.ResolveNamed[*dataSource](f, "primaryDS")
	require.NoError(t, err)
	assert.Equal(t, "file:test.db", ds.DSN)
	assert.Equal(t, 8, ds.PoolSize)

	user, err := di.ResolveNamed[*dataSourceUser](f, "user")
	require.NoError(t, err)
	assert.Same(t, ds, user.DS)
}

func TestPlaceholderProcessorFailsOnUnresolvable(t *testing.T) {
	f := di.NewFactory()
	require.NoError(t, di.Register[*dataSource](f, "ds", di.WithProperty("DSN", "${db.dsn}")))

	err := NewPlaceholderProcessor(FromMap(nil)).PostProcessDefinitions(f)
	assert.ErrorContains(t, err, "definition 'ds'")
}
