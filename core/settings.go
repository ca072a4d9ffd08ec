package core

import (
	"fmt"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
)

// SettingsSection 容器行为开关所在的配置节
const SettingsSection = "container"

// containerSection 配置节 "container" 的形状；未出现的键保持默认值
type containerSection struct {
	AllowDefinitionOverriding *bool `json:"allowDefinitionOverriding"`
	AllowCircularReferences   *bool `json:"allowCircularReferences"`
	ValidateGraph             *bool `json:"validateGraph"`
}

// LoadSettings 从配置节 "container" 读取容器行为开关。
// creationWaitTimeout 支持 "30s" 形式，数值按毫秒处理。
func LoadSettings(cfg config.Configuration) (di.Settings, error) {
	s := di.DefaultSettings()
	if cfg == nil {
		return s, nil
	}

	section, err := config.LoadOrDefault(cfg, SettingsSection, containerSection{})
	if err != nil {
		return s, err
	}
	if section.AllowDefinitionOverriding != nil {
		s.AllowDefinitionOverriding = *section.AllowDefinitionOverriding
	}
	if section.AllowCircularReferences != nil {
		s.AllowCircularReferences = *section.AllowCircularReferences
	}
	if section.ValidateGraph != nil {
		s.ValidateGraph = *section.ValidateGraph
	}

	// 环境变量来源的键是小写的
	for _, key := range []string{SettingsSection + ":creationWaitTimeout", SettingsSection + ":creationwaittimeout"} {
		if _, ok := cfg.Lookup(key); !ok {
			continue
		}
		d, err := cfg.GetDuration(key)
		if err != nil {
			return s, fmt.Errorf("core: invalid %s: %w", key, err)
		}
		s.CreationWaitTimeout = d
		break
	}

	if err := config.Validate(s); err != nil {
		return s, fmt.Errorf("core: invalid container settings: %w", err)
	}
	return s, nil
}
