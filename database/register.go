package database

import (
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
)

// Section 数据库配置节，每个子节是一个连接
const Section = "databases"

// DefaultName 名为 default 的连接在按类型注入时优先
const DefaultName = "default"

// Register 注册一个连接。bean 名称 name 得到 *gorm.DB，"&"+name 得到 ConnectionFactory。
func Register(f *di.Factory, name string, opts Options, defOpts ...di.Option) error {
	if err := config.Validate(opts); err != nil {
		return fmt.Errorf("database: invalid options for '%s': %w", name, err)
	}
	if _, err := dialector(opts); err != nil {
		return err
	}

	base := []di.Option{
		di.WithObjectType(di.TypeOf[*gorm.DB]()),
		di.WithDescription("gorm connection " + name),
	}
	if name == DefaultName {
		base = append(base, di.WithPrimary())
	}
	return di.Provide(f, name, func() *ConnectionFactory {
		return &ConnectionFactory{Name: name, Options: opts}
	}, append(base, defOpts...)...)
}

// RegisterFromConfig 为配置节 "databases" 下的每个子节注册一个连接，按名称排序。
// migrate 中的模型会在每个连接打开后自动迁移。
func RegisterFromConfig(f *di.Factory, cfg config.Configuration, migrate ...any) error {
	sections := cfg.GetSection(Section).GetAll()
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		opts, err := config.LoadOrDefault(cfg, Section+":"+name, DefaultOptions())
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		opts.AutoMigrate = migrate
		if err := Register(f, name, opts); err != nil {
			return err
		}
	}
	return nil
}
