package ioc

import (
	"os"

	"go.uber.org/zap"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// LoggingSection 日志配置节
const LoggingSection = "logging"

type loggingSection struct {
	Level    string `json:"level"`
	Provider string `json:"provider" validate:"omitempty,oneof=console zap"`
	Color    bool   `json:"color"`
	// Categories 按类别前缀覆盖级别，例如 {"di": "debug"}
	Categories map[string]string `json:"categories"`
}

// NewLogger 按配置节 "logging" 创建日志：provider 为 console（默认）或 zap，
// level 默认为 info，categories 按类别覆盖级别。cfg 为 nil 时使用默认值。
func NewLogger(cfg config.Configuration, category string) (logging.Logger, error) {
	section := loggingSection{Level: "info", Provider: "console"}
	if cfg != nil {
		var err error
		if section, err = config.LoadOrDefault(cfg, LoggingSection, section); err != nil {
			return nil, err
		}
	}

	builder := logging.NewLoggingBuilder().
		SetMinimumLevel(logging.ParseLevel(section.Level)).
		SetCategoryLevels(section.Categories)
	switch section.Provider {
	case "zap":
		z, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		builder.AddZap(z)
	default:
		builder.AddConsole(logging.ConsoleLoggerOptions{
			IncludeTimestamp: true,
			TimestampFormat:  "2006-01-02 15:04:05",
			ColorOutput:      section.Color,
			Output:           os.Stdout,
		})
	}
	return builder.Build().CreateLogger(category), nil
}
