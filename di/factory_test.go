package di_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

func TestSingletonIdentity(t *testing.T) {
	f := newFactory()
	var created atomic.Int32
	require.NoError(t, di.Provide(f, "repo", func() *Repo {
		created.Add(1)
		return &Repo{}
	}))

	a, err := f.GetBean("repo")
	require.NoError(t, err)
	b, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), created.Load())
}

func TestConcurrentSingletonCreation(t *testing.T) {
	f := newFactory()
	var created atomic.Int32
	require.NoError(t, di.Provide(f, "repo", func() *Repo {
		created.Add(1)
		return &Repo{}
	}))

	const n = 32
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := f.GetBean("repo")
			assert.NoError(t, err)
			results[i] = obj
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestPrototypeDistinct(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo", di.WithPrototype()))

	a, err := f.GetBean("repo")
	require.NoError(t, err)
	b, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	single, err := f.IsSingleton("repo")
	require.NoError(t, err)
	assert.False(t, single)
	proto, err := f.IsPrototype("repo")
	require.NoError(t, err)
	assert.True(t, proto)
}

func TestGetBeanNotFound(t *testing.T) {
	f := newFactory()
	_, err := f.GetBean("missing")
	var nsd *di.NoSuchDefinitionError
	require.ErrorAs(t, err, &nsd)
	assert.Equal(t, "missing", nsd.Name)
	assert.False(t, f.ContainsBean("missing"))
}

func TestGetBeanByAlias(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo"))
	require.NoError(t, f.RegisterAlias("repo", "r"))

	a, err := f.GetBean("r")
	require.NoError(t, err)
	b, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, f.ContainsBean("r"))
}

func TestConstructorInjection(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Provide(f, "repo", NewRepo))
	require.NoError(t, di.Provide(f, "svc", NewService))

	svc, err := di.ResolveNamed[*Service](f, "svc")
	require.NoError(t, err)
	repo, _ := f.GetBean("repo")
	assert.Same(t, repo, svc.Repo)
}

func TestExplicitArgs(t *testing.T) {
	type Conn struct {
		Host string
		Port int
	}
	f := newFactory()
	require.NoError(t, di.Provide(f, "conn", func(host string, port int) *Conn {
		return &Conn{Host: host, Port: port}
	}, di.WithArgs(di.Value("localhost"), di.Value("5432"))))

	conn, err := di.ResolveNamed[*Conn](f, "conn")
	require.NoError(t, err)
	assert.Equal(t, "localhost", conn.Host)
	assert.Equal(t, 5432, conn.Port)
}

func TestConstructorSelection(t *testing.T) {
	type Client struct {
		Repo *Repo
		Name string
	}
	f := newFactory()
	require.NoError(t, di.Provide(f, "repo", NewRepo))
	require.NoError(t, f.Register("client", di.NewDefinition(di.WithConstructor(
		func() *Client { return &Client{Name: "none"} },
		func(r *Repo) *Client { return &Client{Repo: r, Name: "repo"} },
		func(r *Repo, g Greeter) *Client { return &Client{Repo: r, Name: "greeter"} },
	))))

	// Greeter 没有候选，选参数全部可解析且最多的构造函数
	c, err := di.ResolveNamed[*Client](f, "client")
	require.NoError(t, err)
	assert.Equal(t, "repo", c.Name)
}

func TestAmbiguousConstructors(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Provide(f, "repo", NewRepo))
	require.NoError(t, f.Register("svc", di.NewDefinition(di.WithConstructor(
		func(r *Repo) *Service { return &Service{Repo: r} },
		func(r *Repo) *Service { return &Service{} },
	))))

	_, err := f.GetBean("svc")
	var amb *di.AmbiguousConstructorError
	assert.ErrorAs(t, err, &amb)
}

func TestConstructorErrorAndPanic(t *testing.T) {
	f := newFactory()
	boom := errors.New("boom")
	require.NoError(t, di.Provide(f, "failing", func() (*Repo, error) { return nil, boom }))
	require.NoError(t, di.Provide(f, "panicking", func() *Repo { panic("kaput") }))
	require.NoError(t, di.Provide(f, "nil", func() *Repo { return nil }))

	_, err := f.GetBean("failing")
	var inst *di.BeanInstantiationError
	require.ErrorAs(t, err, &inst)
	assert.ErrorIs(t, err, boom)

	_, err = f.GetBean("panicking")
	require.ErrorAs(t, err, &inst)
	assert.Contains(t, err.Error(), "kaput")

	_, err = f.GetBean("nil")
	require.ErrorAs(t, err, &inst)

	// 失败后没有残留的创建中标记，可以再次尝试
	_, err = f.GetBean("failing")
	assert.ErrorIs(t, err, boom)
}

func TestCreationErrorChain(t *testing.T) {
	type C struct{}
	type B struct{ C *C }
	type A struct{ B *B }
	f := newFactory()
	require.NoError(t, di.Provide(f, "c", func() (*C, error) { return nil, errors.New("db down") }))
	require.NoError(t, di.Provide(f, "b", func(c *C) *B { return &B{C: c} }))
	require.NoError(t, di.Provide(f, "a", func(b *B) *A { return &A{B: b} }))

	_, err := f.GetBean("a")
	var bce *di.BeanCreationError
	require.ErrorAs(t, err, &bce)
	assert.Equal(t, []string{"a", "b", "c"}, bce.Chain())
}

func TestAbstractDefinition(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.Register("base", di.NewDefinition(di.Use[*Repo](), di.WithAbstract(),
		di.WithProperty("DSN", "postgres://base"))))
	require.NoError(t, f.Register("child", di.NewDefinition(di.WithParent("base"))))

	_, err := f.GetBean("base")
	assert.ErrorIs(t, err, di.ErrAbstractDefinition)

	repo, err := di.ResolveNamed[*Repo](f, "child")
	require.NoError(t, err)
	assert.Equal(t, "postgres://base", repo.DSN)
}

func TestParentDefinitionMerge(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.Register("base", di.NewDefinition(di.Use[*EnglishGreeter](), di.WithAbstract(),
		di.WithPrototype(), di.WithProperty("Name", "base"))))
	require.NoError(t, f.Register("child", di.NewDefinition(di.WithParent("base"), di.WithProperty("Name", "child"))))

	merged, err := f.MergedDefinition("child")
	require.NoError(t, err)
	assert.True(t, merged.IsPrototype())
	assert.False(t, merged.Abstract)
	require.Len(t, merged.Properties, 1)

	g, err := di.ResolveNamed[*EnglishGreeter](f, "child")
	require.NoError(t, err)
	assert.Equal(t, "child", g.Name)

	require.NoError(t, f.Register("orphan", di.NewDefinition(di.WithParent("nowhere"))))
	_, err = f.GetBean("orphan")
	assert.Error(t, err)
}

func TestDependsOnOrder(t *testing.T) {
	rec := &recorder{}
	f := newFactory()
	require.NoError(t, di.Provide(f, "first", func() *Repo { rec.add("first"); return &Repo{} }))
	require.NoError(t, di.Provide(f, "second", func() *Service { rec.add("second"); return &Service{} },
		di.WithDependsOn("first")))

	_, err := f.GetBean("second")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, rec.list())
}

func TestDependsOnCycle(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "a", di.WithDependsOn("b")))
	require.NoError(t, di.Register[*Service](f, "b", di.WithDependsOn("a")))

	_, err := f.GetBean("a")
	var circ *di.CircularReferenceError
	assert.ErrorAs(t, err, &circ)
}

func TestUpdateDefinitionFrozen(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo"))
	require.NoError(t, f.UpdateDefinition("repo", func(d *di.Definition) { d.Primary = true }))

	_, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.True(t, f.IsFrozen("repo"))
	assert.ErrorIs(t, f.UpdateDefinition("repo", func(d *di.Definition) {}), di.ErrDefinitionFrozen)
}

func TestReRegisterReplacesSingleton(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.Register("repo", di.NewDefinition(di.Use[*Repo](), di.WithProperty("DSN", "one"))))
	first, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)

	require.NoError(t, f.Register("repo", di.NewDefinition(di.Use[*Repo](), di.WithProperty("DSN", "two"))))
	second, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, "two", second.DSN)
}

func TestRegisterSingleton(t *testing.T) {
	f := newFactory()
	repo := &Repo{DSN: "manual"}
	require.NoError(t, di.Instance(f, "repo", repo))
	require.NoError(t, di.Provide(f, "svc", NewService))

	svc, err := di.ResolveNamed[*Service](f, "svc")
	require.NoError(t, err)
	assert.Same(t, repo, svc.Repo)

	var dup *di.DuplicateDefinitionError
	assert.ErrorAs(t, f.RegisterSingleton("repo", &Repo{}), &dup)
	assert.Error(t, f.RegisterSingleton("nil", nil))
}

func TestBeanTypeWithoutInstantiation(t *testing.T) {
	f := newFactory()
	var created atomic.Int32
	require.NoError(t, di.Provide(f, "repo", func() *Repo { created.Add(1); return &Repo{} }))

	typ, err := f.BeanType("repo")
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*Repo](), typ)
	assert.Zero(t, created.Load())
}

func TestTypeNameResolution(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.RegisterType[*Repo](f.Types(), "Repo"))
	require.NoError(t, f.Register("repo", di.NewDefinition(di.WithTypeName("Repo"))))

	obj, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.IsType(t, &Repo{}, obj)

	require.NoError(t, f.Register("unknown", di.NewDefinition(di.WithTypeName("Nope"))))
	_, err = f.GetBean("unknown")
	assert.Error(t, err)
}

func TestSupplierAndFactoryMethod(t *testing.T) {
	type Config struct{ DSN string }
	f := newFactory()
	require.NoError(t, f.Register("config", di.NewDefinition(di.WithSupplier(func() (any, error) {
		return &Config{DSN: "sqlite://x"}, nil
	}))))
	require.NoError(t, di.Register[*repoFactory](f, "repoFactory"))
	require.NoError(t, f.Register("repo", di.NewDefinition(di.WithFactoryMethod("repoFactory", "Build"),
		di.WithArgs(di.Value("from-factory")))))

	cfg, err := f.GetBean("config")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://x", cfg.(*Config).DSN)

	repo, err := di.ResolveNamed[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Equal(t, "from-factory", repo.DSN)

	typ, err := f.BeanType("repo")
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*Repo](), typ)
}

type repoFactory struct{}

func (*repoFactory) Build(dsn string) *Repo { return &Repo{DSN: dsn} }

func TestTypedGetBeanMismatch(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo"))
	_, err := f.GetTypedBean("repo", di.TypeOf[*Service]())
	var mismatch *di.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)

	_, err = di.ResolveNamed[*Service](f, "repo")
	assert.ErrorAs(t, err, &mismatch)
}
