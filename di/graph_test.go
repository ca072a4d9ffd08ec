package di_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

func TestValidateGraphDetectsConstructorCycle(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Provide(f, "left", func(r *Right) *Left { return &Left{Right: r} }))
	require.NoError(t, di.Provide(f, "right", func(l *Left) *Right { return &Right{Left: l} }))

	err := f.ValidateGraph()
	var circ *di.CircularReferenceError
	require.ErrorAs(t, err, &circ)
	assert.Equal(t, []string{"left", "right", "left"}, circ.Chain)
}

func TestValidateGraphPropertyCycle(t *testing.T) {
	register := func(f *di.Factory) {
		require.NoError(t, f.Register("left", di.NewDefinition(di.Use[*Left](), di.WithProperty("Right", di.Ref("right")))))
		require.NoError(t, f.Register("right", di.NewDefinition(di.Use[*Right](), di.WithProperty("Left", di.Ref("left")))))
	}

	strict := newFactory()
	register(strict)
	var circ *di.CircularReferenceError
	assert.ErrorAs(t, strict.ValidateGraph(), &circ)

	// 允许循环引用时属性环可以通过提前暴露解决
	lenient := newFactory(settings(func(s *di.Settings) { s.AllowCircularReferences = true }))
	register(lenient)
	assert.NoError(t, lenient.ValidateGraph())
}

func TestDependencyOrder(t *testing.T) {
	f := newFactory()
	require.NoError(t, di.Provide(f, "svc", NewService))
	require.NoError(t, di.Provide(f, "repo", NewRepo))
	require.NoError(t, di.Register[*EnglishGreeter](f, "greeter", di.WithDependsOn("svc")))

	order, err := f.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"repo", "svc", "greeter"}, order)
}

func TestValidateGraphIgnoresAmbiguousAndOptional(t *testing.T) {
	type Needs struct{ G Greeter }
	f := newFactory()
	require.NoError(t, di.Register[*EnglishGreeter](f, "english"))
	require.NoError(t, di.Register[*ChineseGreeter](f, "chinese"))
	require.NoError(t, di.Provide(f, "needs", func(g Greeter) *Needs { return &Needs{G: g} }))
	assert.NoError(t, f.ValidateGraph())
}
