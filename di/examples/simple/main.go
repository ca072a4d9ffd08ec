package main

import (
	"fmt"
	"os"

	"github.com/gocrud/ioc/di"
)

// 定义接口
type Greeter interface {
	Greet(name string) string
}

// 实现
type EnglishGreeter struct {
	Prefix string
}

func (g *EnglishGreeter) Greet(name string) string {
	return g.Prefix + " " + name
}

type ChineseGreeter struct{}

func (*ChineseGreeter) Greet(name string) string {
	return "你好, " + name
}

// 服务：构造函数注入 + 字段注入
type WelcomeService struct {
	greeter Greeter
	Backup  Greeter `di:"chinese"`
}

func NewWelcomeService(g Greeter) *WelcomeService {
	return &WelcomeService{greeter: g}
}

func (s *WelcomeService) Init() error {
	fmt.Println("WelcomeService initialized")
	return nil
}

func (s *WelcomeService) Destroy() error {
	fmt.Println("WelcomeService destroyed")
	return nil
}

func main() {
	f := di.NewFactory()

	must(di.Register[*EnglishGreeter](f, "english", di.WithPrimary(), di.WithProperty("Prefix", "Hello,")))
	must(di.Register[*ChineseGreeter](f, "chinese"))
	must(di.Provide(f, "welcome", NewWelcomeService, di.WithInitMethods("Init")))
	must(f.RegisterAlias("welcome", "greeting"))

	must(f.PreInstantiateSingletons())
	defer f.DestroySingletons()

	svc, err := di.ResolveNamed[*WelcomeService](f, "greeting")
	must(err)
	fmt.Println(svc.greeter.Greet("gopher"))
	fmt.Println(svc.Backup.Greet("gopher"))

	// 原型每次获取都是新实例
	must(di.Register[*EnglishGreeter](f, "scratch", di.WithPrototype()))
	a, _ := f.GetBean("scratch")
	b, _ := f.GetBean("scratch")
	fmt.Println("prototype instances differ:", a != b)
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
