package di_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type orderedProcessor struct {
	order int
	tag   string
	rec   *recorder
}

func (p *orderedProcessor) Order() int { return p.order }

func (p *orderedProcessor) AfterInitialization(name string, bean any) (any, error) {
	if name == "target" {
		p.rec.add(p.tag)
	}
	return nil, nil
}

func TestProcessorOrdering(t *testing.T) {
	rec := &recorder{}
	f := newFactory()
	require.NoError(t, f.AddProcessor(&orderedProcessor{order: di.LowestPrecedence, tag: "default-1", rec: rec}))
	require.NoError(t, f.AddProcessor(&orderedProcessor{order: 10, tag: "ten", rec: rec}))
	require.NoError(t, f.AddProcessor(&orderedProcessor{order: -5, tag: "minus-five", rec: rec}))
	require.NoError(t, f.AddProcessor(&orderedProcessor{order: di.LowestPrecedence, tag: "default-2", rec: rec}))
	require.NoError(t, di.Register[*Repo](f, "target"))

	_, err := f.GetBean("target")
	require.NoError(t, err)
	assert.Equal(t, []string{"minus-five", "ten", "default-1", "default-2"}, rec.list())
}

func TestAddProcessorRejectsNonProcessor(t *testing.T) {
	f := newFactory()
	assert.Error(t, f.AddProcessor(struct{}{}))
	assert.Error(t, f.AddProcessor(nil))
}

// loudGreeter 代理：替换最终暴露的 bean
type loudGreeter struct{ inner Greeter }

func (l *loudGreeter) Greet() string { return l.inner.Greet() + "!" }

func TestAfterInitReplacesBean(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.AddProcessor(di.AfterInitFunc(func(name string, bean any) (any, error) {
		if g, ok := bean.(Greeter); ok {
			return &loudGreeter{inner: g}, nil
		}
		return nil, nil
	})))
	require.NoError(t, di.Register[*ChineseGreeter](f, "greeter"))

	g, err := di.ResolveNamed[Greeter](f, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "你好!", g.Greet())
}

func TestSyntheticSkipsProcessors(t *testing.T) {
	rec := &recorder{}
	f := newFactory()
	require.NoError(t, f.AddProcessor(&orderedProcessor{tag: "touched", rec: rec}))
	require.NoError(t, di.Register[*Repo](f, "target", di.WithSynthetic()))

	_, err := f.GetBean("target")
	require.NoError(t, err)
	assert.Empty(t, rec.list())
}

type shortCircuit struct{}

func (shortCircuit) BeforeInstantiation(name string, def *di.Definition) (any, error) {
	if name == "repo" {
		return &Repo{DSN: "short-circuit"}, nil
	}
	return nil, nil
}

func (shortCircuit) AfterInstantiation(string, any) (bool, error) { return true, nil }

func TestBeforeInstantiationShortCircuit(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.AddProcessor(shortCircuit{}))
	require.NoError(t, di.Provide(f, "repo", func() *Repo { panic("must not be called") }))

	r, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Equal(t, "short-circuit", r.DSN)
}

type vetoPopulation struct{}

func (vetoPopulation) BeforeInstantiation(string, *di.Definition) (any, error) { return nil, nil }

func (vetoPopulation) AfterInstantiation(name string, _ any) (bool, error) {
	return name != "repo", nil
}

func TestAfterInstantiationVetoesPopulation(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.AddProcessor(vetoPopulation{}))
	require.NoError(t, di.Register[*Repo](f, "repo", di.WithProperty("DSN", "ignored")))

	r, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Empty(t, r.DSN)
}

func TestProcessorFailures(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.AddProcessor(di.BeforeInitFunc(func(name string, bean any) (any, error) {
		switch name {
		case "failing":
			return nil, errors.New("rejected")
		case "panicking":
			panic("processor panic")
		}
		return nil, nil
	})))
	require.NoError(t, di.Register[*Repo](f, "failing"))
	require.NoError(t, di.Register[*Repo](f, "panicking"))

	var initErr *di.BeanInitializationError
	_, err := f.GetBean("failing")
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, di.StageBeforeInit, initErr.Stage)
	assert.NotEmpty(t, initErr.Processor)

	_, err = f.GetBean("panicking")
	require.ErrorAs(t, err, &initErr)
	assert.Contains(t, err.Error(), "processor panic")
}

type propertyRewriter struct{}

func (propertyRewriter) ProcessProperties(_ di.Injector, name string, _ any, props []di.Property) ([]di.Property, error) {
	if name != "repo" {
		return props, nil
	}
	return append(props, di.Property{Name: "DSN", Arg: di.Value("rewritten")}), nil
}

func TestPropertyProcessorAddsProperties(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.AddProcessor(propertyRewriter{}))
	require.NoError(t, di.Register[*Repo](f, "repo"))

	r, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", r.DSN)
}

type countingDefinitions struct{ seen int }

func (c *countingDefinitions) PostProcessDefinitions(f *di.Factory) error {
	c.seen = f.Count()
	return f.UpdateDefinition("repo", func(d *di.Definition) {
		d.Properties = append(d.Properties, di.Property{Name: "DSN", Arg: di.Value("post-processed")})
	})
}

func TestDefinitionPostProcessorContract(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo"))
	p := &countingDefinitions{}
	var dp di.DefinitionPostProcessor = p
	require.NoError(t, dp.PostProcessDefinitions(f))
	assert.Equal(t, 1, p.seen)

	r, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Equal(t, "post-processed", r.DSN)
}
