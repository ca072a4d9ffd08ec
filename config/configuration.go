package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Configuration 配置接口（类似于 .NET Core IConfiguration）
//
// 键支持 "a:b:c" 与 "a.b.c" 两种分隔符。Configuration 满足 di.Environment。
type Configuration interface {
	// Get 获取配置值
	Get(key string) string
	// GetWithDefault 获取配置值，如果不存在则返回默认值
	GetWithDefault(key, defaultValue string) string
	// Lookup 获取配置值并报告键是否存在
	Lookup(key string) (string, bool)
	GetInt(key string) (int, error)
	GetBool(key string) (bool, error)
	// GetDuration 解析 "30s" 形式的时长，数值按毫秒处理
	GetDuration(key string) (time.Duration, error)
	// GetSection 获取配置节
	GetSection(key string) Configuration
	// Bind 绑定配置到结构体
	Bind(key string, target any) error
	// GetAll 获取所有配置（副本）
	GetAll() map[string]any
}

// ReloadableConfiguration 可以从配置源重新加载的配置
type ReloadableConfiguration interface {
	Configuration
	Reload() error
	// OnReload 注册重新加载完成后的回调
	OnReload(fn func())
}

// configuration 配置实现。数据以快照形式原子替换，读取不加锁。
type configuration struct {
	data     atomic.Pointer[map[string]any]
	segments sync.Map // path -> []string

	sources []ConfigurationSource

	mu        sync.Mutex
	callbacks []func()
}

func newConfiguration(data map[string]any, sources []ConfigurationSource) *configuration {
	c := &configuration{sources: sources}
	c.data.Store(&data)
	return c
}

func (c *configuration) snapshot() map[string]any {
	return *c.data.Load()
}

// Get 获取配置值
func (c *configuration) Get(key string) string {
	v, _ := c.Lookup(key)
	return v
}

// GetWithDefault 获取配置值，如果不存在则返回默认值
func (c *configuration) GetWithDefault(key, defaultValue string) string {
	if v, ok := c.Lookup(key); ok && v != "" {
		return v
	}
	return defaultValue
}

// Lookup 获取配置值；配置节（map）不算作值
func (c *configuration) Lookup(key string) (string, bool) {
	value := c.getByPath(key)
	if value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case map[string]any:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// GetInt 获取整数配置值
func (c *configuration) GetInt(key string) (int, error) {
	value := c.getByPath(key)
	if value == nil {
		return 0, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("config: cannot convert %v to int", value)
	}
}

// GetBool 获取布尔配置值
func (c *configuration) GetBool(key string) (bool, error) {
	value := c.getByPath(key)
	if value == nil {
		return false, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("config: cannot convert %v to bool", value)
	}
}

// GetDuration 获取时长配置值
func (c *configuration) GetDuration(key string) (time.Duration, error) {
	value := c.getByPath(key)
	if value == nil {
		return 0, fmt.Errorf("config: key %s not found", key)
	}

	switch v := value.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("config: cannot convert %v to duration", value)
	}
}

// GetSection 获取配置节；不存在时返回空配置
func (c *configuration) GetSection(key string) Configuration {
	if m, ok := c.getByPath(key).(map[string]any); ok {
		return newConfiguration(m, nil)
	}
	return newConfiguration(make(map[string]any), nil)
}

// Bind 绑定配置到结构体
func (c *configuration) Bind(key string, target any) error {
	data := c.getByPath(key)
	if data == nil {
		return fmt.Errorf("config: key %s not found", key)
	}

	// 使用 JSON 序列化/反序列化进行绑定
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("config: failed to marshal section %s: %w", key, err)
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("config: failed to bind section %s: %w", key, err)
	}
	return nil
}

// GetAll 获取所有配置
func (c *configuration) GetAll() map[string]any {
	result := make(map[string]any)
	mergeMaps(result, c.snapshot())
	return result
}

// Reload 按顺序重新加载全部配置源，成功后替换快照并触发回调
func (c *configuration) Reload() error {
	data, err := loadSources(c.sources)
	if err != nil {
		return err
	}
	c.data.Store(&data)

	c.mu.Lock()
	callbacks := append([]func(){}, c.callbacks...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// OnReload 注册重载回调
func (c *configuration) OnReload(fn func()) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

// getByPath 通过路径获取值（支持 "a:b:c" 或 "a.b.c"）
func (c *configuration) getByPath(path string) any {
	data := c.snapshot()
	if path == "" {
		return data
	}

	current := any(data)
	for _, part := range c.pathSegments(path) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func (c *configuration) pathSegments(path string) []string {
	if v, ok := c.segments.Load(path); ok {
		return v.([]string)
	}
	parts := strings.Split(strings.ReplaceAll(path, ":", "."), ".")
	c.segments.Store(path, parts)
	return parts
}

// mergeMaps 合并两个 map，src 覆盖 dst
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeMaps(dstMap, srcMap)
				continue
			}
			copied := make(map[string]any, len(srcMap))
			mergeMaps(copied, srcMap)
			dst[k] = copied
			continue
		}
		dst[k] = v
	}
}

// setNestedValue 按 ":" 分隔的路径设置值；字符串尝试转换为数值或布尔
func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ":")
	current := data

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			if _, exists := current[part]; exists {
				return
			}
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}

	if s, ok := value.(string); ok {
		value = parseScalar(s)
	}
	current[parts[len(parts)-1]] = value
}

func parseScalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
