package di_test

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

// repoFactoryBean 生产 *Repo
type repoFactoryBean struct {
	DSN       string
	Singleton bool
	made      atomic.Int32
}

func (f *repoFactoryBean) Object() (any, error) {
	f.made.Add(1)
	return &Repo{DSN: f.DSN}, nil
}

func (f *repoFactoryBean) ObjectType() reflect.Type { return di.TypeOf[*Repo]() }

func (f *repoFactoryBean) IsSingleton() bool { return f.Singleton }

func TestFactoryBeanProduct(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*repoFactoryBean](f, "repo",
		di.WithProperty("DSN", "fb"), di.WithProperty("Singleton", true)))

	product, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.Equal(t, "fb", product.(*Repo).DSN)

	again, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.Same(t, product, again)

	raw, err := f.GetBean("&repo")
	require.NoError(t, err)
	fb := raw.(*repoFactoryBean)
	assert.Equal(t, int32(1), fb.made.Load())

	typ, err := f.BeanType("repo")
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*Repo](), typ)
}

func TestFactoryBeanNonSingletonProduct(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*repoFactoryBean](f, "repo"))

	a, err := f.GetBean("repo")
	require.NoError(t, err)
	b, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	single, err := f.IsSingleton("repo")
	require.NoError(t, err)
	assert.False(t, single)
	single, err = f.IsSingleton("&repo")
	require.NoError(t, err)
	assert.True(t, single)
}

func TestFactoryDereferenceOfPlainBean(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo"))
	_, err := f.GetBean("&repo")
	var mismatch *di.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
	assert.False(t, f.ContainsBean("&repo"))
}

func TestFactoryBeanProductByType(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*repoFactoryBean](f, "repo", di.WithObjectType(di.TypeOf[*Repo]())))
	require.NoError(t, di.Provide(f, "svc", NewService))

	svc, err := di.ResolveNamed[*Service](f, "svc")
	require.NoError(t, err)
	require.NotNil(t, svc.Repo)
}

type eagerFactoryBean struct {
	repoFactoryBean
}

func (*eagerFactoryBean) IsEagerInit() bool { return true }

func TestEagerFactoryBean(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*repoFactoryBean](f, "lazyProduct"))
	require.NoError(t, di.Register[*eagerFactoryBean](f, "eagerProduct"))
	require.NoError(t, f.PreInstantiateSingletons())

	lazy, err := f.GetBean("&lazyProduct")
	require.NoError(t, err)
	assert.Zero(t, lazy.(*repoFactoryBean).made.Load())

	eager, err := f.GetBean("&eagerProduct")
	require.NoError(t, err)
	assert.Equal(t, int32(1), eager.(*eagerFactoryBean).made.Load())
}

// gatedFactoryBean 在 gate 关闭前阻塞 Object
type gatedFactoryBean struct {
	gate chan struct{}
	made atomic.Int32
}

func (f *gatedFactoryBean) Object() (any, error) {
	f.made.Add(1)
	<-f.gate
	return &Repo{DSN: "gated"}, nil
}

func (f *gatedFactoryBean) ObjectType() reflect.Type { return di.TypeOf[*Repo]() }

func (f *gatedFactoryBean) IsSingleton() bool { return true }

func TestFactoryBeanProductCreatedOnceConcurrently(t *testing.T) {
	f := newFactory()
	fb := &gatedFactoryBean{gate: make(chan struct{})}
	require.NoError(t, f.RegisterSingleton("repo", fb))

	results := make([]any, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := f.GetBean("repo")
			assert.NoError(t, err)
			results[i] = obj
		}()
	}

	require.Eventually(t, func() bool { return fb.made.Load() == 1 }, time.Second, 5*time.Millisecond)
	// 给其它 goroutine 时间到达等待点
	time.Sleep(50 * time.Millisecond)
	close(fb.gate)
	wg.Wait()

	assert.Equal(t, int32(1), fb.made.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
