package database

import (
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// ConnectionFactory 产出 *gorm.DB 的 FactoryBean。连接在第一次获取时打开，
// 预实例化阶段即会获取；销毁时关闭连接池。
type ConnectionFactory struct {
	Name    string
	Options Options
	Logger  logging.Logger `di:"?"`

	mu sync.Mutex
	db *gorm.DB
}

var _ di.EagerFactoryBean = (*ConnectionFactory)(nil)
var _ di.DisposableBean = (*ConnectionFactory)(nil)

func (c *ConnectionFactory) Object() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}

	d, err := dialector(c.Options)
	if err != nil {
		return nil, err
	}
	gormConfig := c.Options.GormConfig
	if gormConfig == nil {
		gormConfig = &gorm.Config{}
	}
	db, err := gorm.Open(d, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("database: open '%s': %w", c.Name, err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: sql.DB for '%s': %w", c.Name, err)
	}
	sqlDB.SetMaxIdleConns(c.Options.MaxIdleConns)
	sqlDB.SetMaxOpenConns(c.Options.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(c.Options.lifetime())

	if len(c.Options.AutoMigrate) > 0 {
		if err := db.AutoMigrate(c.Options.AutoMigrate...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("database: auto migrate '%s': %w", c.Name, err)
		}
	}

	c.logger().Info("Database opened",
		logging.String("name", c.Name),
		logging.String("driver", c.Options.Driver))
	c.db = db
	return db, nil
}

func (c *ConnectionFactory) ObjectType() reflect.Type { return di.TypeOf[*gorm.DB]() }

func (c *ConnectionFactory) IsSingleton() bool { return true }

func (c *ConnectionFactory) IsEagerInit() bool { return true }

// Destroy 关闭连接池；未打开时什么也不做
func (c *ConnectionFactory) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	c.logger().Info("Closing database connections", logging.String("name", c.Name))
	return sqlDB.Close()
}

func (c *ConnectionFactory) logger() logging.Logger {
	if c.Logger == nil {
		return logging.NewNopLogger()
	}
	return c.Logger.WithCategory("database")
}
