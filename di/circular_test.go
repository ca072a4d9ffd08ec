package di_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type Left struct {
	Right *Right
}

type Right struct {
	Left *Left
}

func TestConstructorCycleFails(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.AllowCircularReferences = true }))
	require.NoError(t, di.Provide(f, "left", func(r *Right) *Left { return &Left{Right: r} }))
	require.NoError(t, di.Provide(f, "right", func(l *Left) *Right { return &Right{Left: l} }))

	_, err := f.GetBean("left")
	var circ *di.CircularReferenceError
	require.ErrorAs(t, err, &circ)
	assert.Equal(t, []string{"left", "right", "left"}, circ.Chain)

	// 失败不留下残留的创建中标记
	_, err = f.GetBean("right")
	assert.ErrorAs(t, err, &circ)
}

func TestPropertyCycleWithEarlyReference(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.AllowCircularReferences = true }))
	require.NoError(t, f.Register("left", di.NewDefinition(di.Use[*Left](), di.WithProperty("Right", di.Ref("right")))))
	require.NoError(t, f.Register("right", di.NewDefinition(di.Use[*Right](), di.WithProperty("Left", di.Ref("left")))))

	l, err := di.ResolveNamed[*Left](f, "left")
	require.NoError(t, err)
	r, err := di.ResolveNamed[*Right](f, "right")
	require.NoError(t, err)
	assert.Same(t, r, l.Right)
	assert.Same(t, l, r.Left)
}

func TestPropertyCycleRejectedByDefault(t *testing.T) {
	f := newFactory()
	require.NoError(t, f.Register("left", di.NewDefinition(di.Use[*Left](), di.WithProperty("Right", di.Ref("right")))))
	require.NoError(t, f.Register("right", di.NewDefinition(di.Use[*Right](), di.WithProperty("Left", di.Ref("left")))))

	_, err := f.GetBean("left")
	var circ *di.CircularReferenceError
	assert.ErrorAs(t, err, &circ)
}

func TestPrototypeCycleFails(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.AllowCircularReferences = true }))
	require.NoError(t, f.Register("left", di.NewDefinition(di.Use[*Left](), di.WithPrototype(),
		di.WithProperty("Right", di.Ref("right")))))
	require.NoError(t, f.Register("right", di.NewDefinition(di.Use[*Right](), di.WithPrototype(),
		di.WithProperty("Left", di.Ref("left")))))

	_, err := f.GetBean("left")
	var circ *di.CircularReferenceError
	assert.ErrorAs(t, err, &circ)
}

// wrappingProcessor 在初始化后替换 left，使提前暴露的引用失效
type wrappingProcessor struct{}

type wrappedLeft struct{ *Left }

func (wrappingProcessor) AfterInitialization(name string, bean any) (any, error) {
	if name == "left" {
		return &wrappedLeft{Left: bean.(*Left)}, nil
	}
	return nil, nil
}

func TestEarlyReferenceDivergence(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.AllowCircularReferences = true }))
	require.NoError(t, f.AddProcessor(wrappingProcessor{}))
	require.NoError(t, f.Register("left", di.NewDefinition(di.Use[*Left](), di.WithProperty("Right", di.Ref("right")))))
	require.NoError(t, f.Register("right", di.NewDefinition(di.Use[*Right](), di.WithProperty("Left", di.Ref("left")))))

	_, err := f.GetBean("left")
	var circ *di.CircularReferenceError
	require.ErrorAs(t, err, &circ)
	assert.Contains(t, circ.Reason, "wrapped")
}

// barrier 让两个 bean 的创建在两个 goroutine 中同时开始
type barrier struct {
	wg    sync.WaitGroup
	names map[string]bool
}

func (b *barrier) BeforeInstantiation(name string, _ *di.Definition) (any, error) {
	if b.names[name] {
		b.wg.Done()
		b.wg.Wait()
	}
	return nil, nil
}

func (b *barrier) AfterInstantiation(string, any) (bool, error) { return true, nil }

func TestCrossGoroutineCycleDoesNotDeadlock(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.CreationWaitTimeout = 10 * time.Second }))
	b := &barrier{names: map[string]bool{"left": true, "right": true}}
	b.wg.Add(2)
	require.NoError(t, f.AddProcessor(b))
	require.NoError(t, di.Provide(f, "left", func(r *Right) *Left { return &Left{Right: r} }))
	require.NoError(t, di.Provide(f, "right", func(l *Left) *Right { return &Right{Left: l} }))

	errs := make(chan error, 2)
	start := time.Now()
	for _, name := range []string{"left", "right"} {
		go func() {
			_, err := f.GetBean(name)
			errs <- err
		}()
	}
	for range 2 {
		err := <-errs
		var circ *di.CircularReferenceError
		assert.True(t, errors.As(err, &circ), "expected circular reference, got %v", err)
	}
	assert.Less(t, time.Since(start), 5*time.Second, "cycle must be detected without waiting for the timeout")
}

func TestWaiterReceivesCreatedInstance(t *testing.T) {
	f := newFactory()
	release := make(chan struct{})
	entered := make(chan struct{})
	require.NoError(t, di.Provide(f, "slow", func() *Repo {
		close(entered)
		<-release
		return &Repo{DSN: "slow"}
	}))

	results := make(chan any, 1)
	go func() {
		obj, _ := f.GetBean("slow")
		results <- obj
	}()
	<-entered

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	obj, err := f.GetBean("slow")
	require.NoError(t, err)
	assert.Same(t, obj, <-results)
}

func TestCreationWaitTimeout(t *testing.T) {
	f := newFactory(settings(func(s *di.Settings) { s.CreationWaitTimeout = 50 * time.Millisecond }))
	release := make(chan struct{})
	entered := make(chan struct{})
	require.NoError(t, di.Provide(f, "stuck", func() *Repo {
		close(entered)
		<-release
		return &Repo{}
	}))

	go func() { _, _ = f.GetBean("stuck") }()
	<-entered
	_, err := f.GetBean("stuck")
	close(release)

	var circ *di.CircularReferenceError
	require.ErrorAs(t, err, &circ)
	assert.Contains(t, circ.Reason, "timed out")
}

// brokenHead 初始化失败，但它的提前引用已经被 tail 持有
type brokenHead struct {
	Tail *cycleTail
}

func (*brokenHead) AfterPropertiesSet() error { return errors.New("boom") }

type cycleTail struct {
	Head *brokenHead
	rec  *recorder
}

func (c *cycleTail) Destroy() error {
	c.rec.add("tail")
	return nil
}

func TestFailedSingletonRemovesEarlyReferenceHolders(t *testing.T) {
	rec := &recorder{}
	f := newFactory(settings(func(s *di.Settings) { s.AllowCircularReferences = true }))
	require.NoError(t, f.Register("head", di.NewDefinition(di.Use[*brokenHead](),
		di.WithProperty("Tail", di.Ref("tail")))))
	require.NoError(t, di.Provide(f, "tail", func() *cycleTail { return &cycleTail{rec: rec} },
		di.WithProperty("Head", di.Ref("head"))))

	_, err := f.GetBean("head")
	var initErr *di.BeanInitializationError
	require.ErrorAs(t, err, &initErr)

	// tail 持有失败的 head，不能留在缓存里
	assert.Empty(t, f.SingletonNames())
	assert.Equal(t, []string{"tail"}, rec.list())

	_, err = f.GetBean("tail")
	assert.ErrorAs(t, err, &initErr)
}
