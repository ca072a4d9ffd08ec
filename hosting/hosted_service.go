package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// HostedService 托管服务接口（类似于 .NET Core IHostedService）
// 框架会自动在 goroutine 中调用 Start，用户无需自己启动 goroutine
type HostedService interface {
	// Start 启动服务。该方法应阻塞执行，直到 context 被取消或发生错误。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑。
	// 注意：当 Start 的 context 被取消时，服务应自动停止。
	Stop(ctx context.Context) error
}

type namedService struct {
	name    string
	service HostedService
}

// HostedServiceManager 托管服务管理器
type HostedServiceManager struct {
	services []namedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	started  bool
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HostedServiceManager{
		services: make([]namedService, 0),
		logger:   logger,
	}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(name string, service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, namedService{name: name, service: service})
}

// Len 已添加的服务数量
func (m *HostedServiceManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// Discover 把容器中实现了 HostedService 的单例 bean 按注册顺序加入管理器。
// 服务 bean 会在这里被创建。
func (m *HostedServiceManager) Discover(f *di.Factory) error {
	names := f.NamesForType(di.TypeOf[HostedService](), false, true)
	for _, name := range names {
		obj, err := f.GetBean(name)
		if err != nil {
			return fmt.Errorf("hosting: failed to resolve hosted service '%s': %w", name, err)
		}
		svc, ok := obj.(HostedService)
		if !ok {
			return fmt.Errorf("hosting: bean '%s' is %T, not a HostedService", name, obj)
		}
		m.Add(name, svc)
	}
	return nil
}

// StartAll 启动所有托管服务，每个服务在独立的 goroutine 中运行。
// 服务以非取消类错误退出时，错误写入返回的通道。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errCh := make(chan error, len(m.services))
	m.started = true
	m.logger.Info(fmt.Sprintf("Starting %d hosted services", len(m.services)))

	for _, s := range m.services {
		m.wg.Add(1)
		go func(s namedService) {
			defer m.wg.Done()

			m.logger.Debug("Starting hosted service", logging.String("service", s.name))
			err := s.service.Start(ctx)
			switch {
			case err == nil:
				m.logger.Info("Hosted service completed", logging.String("service", s.name))
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				m.logger.Debug("Hosted service stopped (context done)", logging.String("service", s.name))
			default:
				m.logger.Error("Hosted service failed", logging.String("service", s.name), logging.Err(err))
				errCh <- fmt.Errorf("hosting: service '%s': %w", s.name, err)
			}
		}(s)
	}
	return errCh
}

// StopAll 逆序并发停止所有托管服务，返回合并后的错误
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil
	}

	m.logger.Info(fmt.Sprintf("Stopping %d hosted services", len(m.services)))

	var (
		wg   sync.WaitGroup
		errM sync.Mutex
		errs error
	)
	for i := len(m.services) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(s namedService) {
			defer wg.Done()
			if err := s.service.Stop(ctx); err != nil {
				m.logger.Error("Failed to stop hosted service", logging.String("service", s.name), logging.Err(err))
				errM.Lock()
				errs = multierr.Append(errs, fmt.Errorf("hosting: stop '%s': %w", s.name, err))
				errM.Unlock()
				return
			}
			m.logger.Debug("Hosted service stopped", logging.String("service", s.name))
		}(m.services[i])
	}
	wg.Wait()
	return errs
}

// Wait 等待所有 Start 返回，ctx 结束时提前返回其错误
func (m *HostedServiceManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServiceFunc 把函数包装为托管服务，Stop 为空操作
type ServiceFunc func(ctx context.Context) error

func (fn ServiceFunc) Start(ctx context.Context) error { return fn(ctx) }

func (fn ServiceFunc) Stop(context.Context) error { return nil }
