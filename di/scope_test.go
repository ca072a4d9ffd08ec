package di_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

// Test SimpleScope - 同一作用域内复用，不同作用域隔离
func TestSimpleScopeReuse(t *testing.T) {
	f := newFactory()
	request := di.NewSimpleScope()
	require.NoError(t, f.RegisterScope("request", request))
	require.NoError(t, di.Register[*Repo](f, "repo", di.WithScope("request")))

	a, err := f.GetBean("repo")
	require.NoError(t, err)
	b, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, request.Len())

	// 替换为新的作用域实例，相当于开始一次新请求
	require.NoError(t, f.RegisterScope("request", di.NewSimpleScope()))
	c, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestScopeNotRegistered(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Register[*Repo](f, "repo", di.WithScope("session")))
	_, err := f.GetBean("repo")
	assert.Error(t, err)
}

func TestBuiltinScopesCannotBeReplaced(t *testing.T) {
	f := newFactory()
	assert.Error(t, f.RegisterScope(di.ScopeSingleton, di.NewSimpleScope()))
	assert.Error(t, f.RegisterScope(di.ScopePrototype, di.NewSimpleScope()))
	assert.Error(t, f.RegisterScope("", di.NewSimpleScope()))
}

// Test Scope Destroy - 按注册逆序执行销毁回调
func TestScopeDestroyCallbacks(t *testing.T) {
	rec := &recorder{}
	f := newFactory()
	scope := di.NewSimpleScope()
	require.NoError(t, f.RegisterScope("task", scope))
	require.NoError(t, di.Provide(f, "first", func() *destroyable { return &destroyable{rec: rec, name: "first"} },
		di.WithScope("task")))
	require.NoError(t, di.Provide(f, "second", func() *destroyable { return &destroyable{rec: rec, name: "second"} },
		di.WithScope("task")))

	_, err := f.GetBean("first")
	require.NoError(t, err)
	_, err = f.GetBean("second")
	require.NoError(t, err)

	scope.Destroy()
	assert.Equal(t, []string{"second", "first"}, rec.list())
	assert.Zero(t, scope.Len())
}

func TestDestroyScopedBean(t *testing.T) {
	rec := &recorder{}
	f := newFactory()
	scope := di.NewSimpleScope()
	require.NoError(t, f.RegisterScope("task", scope))
	require.NoError(t, di.Provide(f, "job", func() *destroyable { return &destroyable{rec: rec, name: "job"} },
		di.WithScope("task")))
	require.NoError(t, di.Register[*Repo](f, "singleton"))

	_, err := f.GetBean("job")
	require.NoError(t, err)
	require.NoError(t, f.DestroyScopedBean("job"))
	assert.Equal(t, []string{"job"}, rec.list())
	assert.Zero(t, scope.Len())

	assert.Error(t, f.DestroyScopedBean("singleton"))
}

func TestScopeConcurrentCreation(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.RegisterScope("request", di.NewSimpleScope()))
	var created atomic.Int32
	require.NoError(t, di.Provide(f, "repo", func() *Repo { created.Add(1); return &Repo{} },
		di.WithScope("request")))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.GetBean("repo")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())
}

func TestChildSeesParentScope(t *testing.T) {
	parent := newFactory()
	require.NoError(t, parent.RegisterScope("request", di.NewSimpleScope()))
	child := newFactory(di.WithParentFactory(parent))
	require.NoError(t, di.Register[*Repo](child, "repo", di.WithScope("request")))

	_, err := child.GetBean("repo")
	assert.NoError(t, err)
}

type scopedX struct{ Y *scopedY }

type scopedY struct{ X *scopedX }

func TestScopedCycleAcrossGoroutinesFailsFast(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.CreationWaitTimeout = 200 * time.Millisecond }))
	require.NoError(t, f.RegisterScope("request", di.NewSimpleScope()))

	// 两个原始实例都创建出来之后才开始填充属性
	var arrived atomic.Int32
	arrive := func() {
		arrived.Add(1)
		deadline := time.Now().Add(time.Second)
		for arrived.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	require.NoError(t, di.Provide(f, "x", func() *scopedX { arrive(); return &scopedX{} },
		di.WithScope("request"), di.WithProperty("Y", di.Ref("y"))))
	require.NoError(t, di.Provide(f, "y", func() *scopedY { arrive(); return &scopedY{} },
		di.WithScope("request"), di.WithProperty("X", di.Ref("x"))))

	errs := make(chan error, 2)
	for _, name := range []string{"x", "y"} {
		go func() {
			_, err := f.GetBean(name)
			errs <- err
		}()
	}

	for range 2 {
		select {
		case err := <-errs:
			var circ *di.CircularReferenceError
			assert.ErrorAs(t, err, &circ)
		case <-time.After(3 * time.Second):
			t.Fatal("scoped creation did not finish")
		}
	}
}
