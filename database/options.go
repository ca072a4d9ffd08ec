package database

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Options 一个数据库连接的配置，通常来自配置节 "databases:<name>"
type Options struct {
	Driver       string `json:"driver" validate:"required"`
	DSN          string `json:"dsn" validate:"required"`
	MaxIdleConns int    `json:"maxIdleConns" validate:"gte=0"`
	MaxOpenConns int    `json:"maxOpenConns" validate:"gte=0"`
	MaxLifetime  string `json:"maxLifetime" validate:"omitempty,duration"`

	GormConfig  *gorm.Config `json:"-"`
	AutoMigrate []any        `json:"-"` // 需要自动迁移的模型
}

// DefaultOptions 默认连接池参数
func DefaultOptions() Options {
	return Options{
		Driver:       "sqlite",
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  "1h",
	}
}

func (o Options) lifetime() time.Duration {
	if o.MaxLifetime == "" {
		return 0
	}
	d, _ := time.ParseDuration(o.MaxLifetime)
	return d
}

// Opener 根据 DSN 创建 GORM 驱动
type Opener func(dsn string) gorm.Dialector

var (
	driversMu sync.RWMutex
	drivers   = map[string]Opener{
		"sqlite": sqlite.Open,
	}
)

// RegisterDriver 注册驱动，同名覆盖
func RegisterDriver(name string, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = open
}

func dialector(o Options) (gorm.Dialector, error) {
	driversMu.RLock()
	open, ok := drivers[o.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database: unknown driver '%s'", o.Driver)
	}
	return open(o.DSN), nil
}
