package main

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/gocrud/ioc"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/scheduling"
)

type Item struct {
	gorm.Model
	Name string
}

type ItemRepository struct {
	DB *gorm.DB `di:""`
}

func (r *ItemRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&Item{}).Count(&n).Error
	return n, err
}

// InventoryReport 按配置的 cron 表达式打印库存数量
type InventoryReport struct {
	Repo   *ItemRepository `di:""`
	Logger logging.Logger  `di:""`
}

func (r *InventoryReport) Run(ctx context.Context) error {
	n, err := r.Repo.Count(ctx)
	if err != nil {
		return err
	}
	r.Logger.Info("Inventory report", logging.Field{Key: "items", Value: n})
	return nil
}

func main() {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"databases": map[string]any{
				"default": map[string]any{"dsn": "file:inventory?mode=memory&cache=shared"},
			},
			"jobs":    map[string]any{"report": "@every 10s"},
			"logging": map[string]any{"level": "debug"},
		}).
		AddYamlFile("application.yaml", true).
		AddEnvironmentVariables("INVENTORY_").
		Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := ioc.NewLogger(cfg, "inventory")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	b := ioc.NewApplicationBuilder().
		With(
			core.WithConfiguration(cfg),
			core.WithLogger(logger),
			core.WithDefinitions(func(f *di.Factory) error {
				if err := di.Register[*ItemRepository](f, "items"); err != nil {
					return err
				}
				return di.Register[*InventoryReport](f, "report", scheduling.WithCron("${jobs.report:@hourly}"))
			}),
		).
		Use(ioc.Placeholders(), ioc.Databases(&Item{}), ioc.Scheduling(), ioc.Metrics("inventory", nil))

	if err := ioc.Run(context.Background(), b); err != nil {
		logger.Error("Application stopped with error", logging.Err(err))
		os.Exit(1)
	}
}
