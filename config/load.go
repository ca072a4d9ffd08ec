package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator 共享的校验器，额外注册了 "duration" 规则（可被 time.ParseDuration 解析的字符串）
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			if fl.Field().String() == "" {
				return true
			}
			_, err := time.ParseDuration(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Load 绑定指定节的配置到结构体 T 并按 `validate` 标签校验。
// section 为空时绑定整个配置。
func Load[T any](cfg Configuration, section string) (T, error) {
	var t T
	if err := cfg.Bind(section, &t); err != nil {
		return t, err
	}
	if err := Validate(t); err != nil {
		return t, fmt.Errorf("config: invalid section '%s': %w", section, err)
	}
	return t, nil
}

// LoadOrDefault 与 Load 相同，但节不存在时返回 def（仍会校验）
func LoadOrDefault[T any](cfg Configuration, section string, def T) (T, error) {
	if len(cfg.GetSection(section).GetAll()) == 0 {
		if err := Validate(def); err != nil {
			return def, fmt.Errorf("config: invalid default for '%s': %w", section, err)
		}
		return def, nil
	}
	t := def
	if err := cfg.Bind(section, &t); err != nil {
		return t, err
	}
	if err := Validate(t); err != nil {
		return t, fmt.Errorf("config: invalid section '%s': %w", section, err)
	}
	return t, nil
}

// Validate 对结构体（或指向结构体的指针）执行校验，其他类型直接通过
func Validate(v any) error {
	err := Validator().Struct(v)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return nil
	}
	return err
}
