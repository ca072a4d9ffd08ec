package hosting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type recordingService struct {
	name    string
	mu      *sync.Mutex
	stopped *[]string
	stopErr error
}

func (s *recordingService) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *recordingService) Stop(context.Context) error {
	s.mu.Lock()
	*s.stopped = append(*s.stopped, s.name)
	s.mu.Unlock()
	return s.stopErr
}

func TestStartStopAll(t *testing.T) {
	var mu sync.Mutex
	var stopped []string
	m := NewHostedServiceManager(nil)
	m.Add("a", &recordingService{name: "a", mu: &mu, stopped: &stopped})
	m.Add("b", &recordingService{name: "b", mu: &mu, stopped: &stopped, stopErr: errors.New("boom")})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := m.StartAll(ctx)
	cancel()

	err := m.StopAll(context.Background())
	assert.ErrorContains(t, err, "stop 'b'")
	assert.ElementsMatch(t, []string{"a", "b"}, stopped)
	require.NoError(t, m.Wait(context.Background()))

	select {
	case err := <-errCh:
		t.Fatalf("unexpected service error: %v", err)
	default:
	}
}

func TestFailingServiceReportsError(t *testing.T) {
	m := NewHostedServiceManager(nil)
	m.Add("broken", ServiceFunc(func(context.Context) error { return errors.New("crashed") }))

	errCh := m.StartAll(context.Background())
	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "service 'broken'")
	case <-time.After(time.Second):
		t.Fatal("expected an error from the failing service")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	m := NewHostedServiceManager(nil)
	m.Add("x", ServiceFunc(func(context.Context) error { return nil }))
	assert.NoError(t, m.StopAll(context.Background()))
}

type worker struct {
	started chan struct{}
}

func (w *worker) Start(ctx context.Context) error {
	close(w.started)
	<-ctx.Done()
	return nil
}

func (w *worker) Stop(context.Context) error { return nil }

func TestDiscover(t *testing.T) {
	f := di.NewFactory()
	w := &worker{started: make(chan struct{})}
	require.NoError(t, di.Instance(f, "worker", w))
	require.NoError(t, di.Register[*worker](f, "prototypeWorker", di.WithPrototype()))

	m := NewHostedServiceManager(nil)
	require.NoError(t, m.Discover(f))
	assert.Equal(t, 1, m.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)
	select {
	case <-w.started:
	case <-time.After(time.Second):
		t.Fatal("worker was not started")
	}
}
