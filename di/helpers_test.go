package di_test

import (
	"sync"

	"github.com/gocrud/ioc/di"
)

// 测试用接口和实现
type Greeter interface {
	Greet() string
}

type EnglishGreeter struct{ Name string }

func (g *EnglishGreeter) Greet() string { return "hello " + g.Name }

type ChineseGreeter struct{}

func (g *ChineseGreeter) Greet() string { return "你好" }

type Repo struct {
	DSN string
}

func NewRepo() *Repo { return &Repo{DSN: "memory"} }

type Service struct {
	Repo *Repo
}

func NewService(r *Repo) *Service { return &Service{Repo: r} }

// recorder 记录回调顺序，并发安全
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newFactory(opts ...di.FactoryOption) *di.Factory {
	return di.NewFactory(opts...)
}

func settings(mod func(*di.Settings)) di.FactoryOption {
	s := di.DefaultSettings()
	mod(&s)
	return di.WithFactorySettings(s)
}
