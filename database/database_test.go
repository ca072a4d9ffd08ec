package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/di"
)

type User struct {
	gorm.Model
	Name string
}

type UserRepository struct {
	DB      *gorm.DB `di:""`
	Reports *gorm.DB `di:"reports"`
}

func newConfig() config.Configuration {
	return config.FromMap(map[string]any{
		"databases": map[string]any{
			"default": map[string]any{
				"dsn":          "file:users?mode=memory&cache=shared",
				"maxOpenConns": 5,
			},
			"reports": map[string]any{
				"dsn": "file:reports?mode=memory&cache=shared",
			},
		},
	})
}

func TestRegisterFromConfig(t *testing.T) {
	f := di.NewFactory()
	require.NoError(t, database.RegisterFromConfig(f, newConfig(), &User{}))
	require.NoError(t, di.Register[*UserRepository](f, "users"))
	require.NoError(t, f.PreInstantiateSingletons())

	repo, err := di.ResolveNamed[*UserRepository](f, "users")
	require.NoError(t, err)
	require.NotNil(t, repo.DB)
	assert.NotSame(t, repo.DB, repo.Reports)

	sqlDB, err := repo.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 5, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, repo.DB.Create(&User{Name: "test"}).Error)
	var count int64
	require.NoError(t, repo.DB.Model(&User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 同一个连接只打开一次
	again, err := di.ResolveNamed[*gorm.DB](f, "default")
	require.NoError(t, err)
	assert.Same(t, repo.DB, again)

	raw, err := f.GetBean(di.FactoryBeanPrefix + "default")
	require.NoError(t, err)
	assert.IsType(t, &database.ConnectionFactory{}, raw)

	f.DestroySingletons()
	assert.Error(t, sqlDB.Ping())
}

func TestRegisterRejectsInvalidOptions(t *testing.T) {
	f := di.NewFactory()

	opts := database.DefaultOptions()
	assert.Error(t, database.Register(f, "nodsn", opts))

	opts.DSN = "file::memory:"
	opts.Driver = "oracle"
	assert.Error(t, database.Register(f, "unknown", opts))

	opts.Driver = "sqlite"
	opts.MaxLifetime = "forever"
	assert.Error(t, database.Register(f, "badlifetime", opts))
}

func TestRegisterFromConfigInvalidSection(t *testing.T) {
	cfg := config.FromMap(map[string]any{
		"databases": map[string]any{
			"default": map[string]any{"dsn": "file::memory:", "maxOpenConns": -1},
		},
	})
	assert.Error(t, database.RegisterFromConfig(di.NewFactory(), cfg))
}

func TestNamesForTypeWithoutOpening(t *testing.T) {
	f := di.NewFactory()
	require.NoError(t, database.RegisterFromConfig(f, newConfig()))

	names := f.NamesForType(di.TypeOf[*gorm.DB](), true, false)
	assert.Equal(t, []string{"default", "reports"}, names)
	assert.Empty(t, f.SingletonNames())
}
