package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// JsonFileSource JSON 文件配置源
type JsonFileSource struct {
	Path     string
	Optional bool
}

func (s *JsonFileSource) Name() string {
	return fmt.Sprintf("JsonFile(%s)", s.Path)
}

func (s *JsonFileSource) Load() (map[string]any, error) {
	data, err := readFile(s.Path, s.Optional)
	if data == nil || err != nil {
		return make(map[string]any), err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}

// YamlFileSource YAML 文件配置源
type YamlFileSource struct {
	Path     string
	Optional bool
}

func (s *YamlFileSource) Name() string {
	return fmt.Sprintf("YamlFile(%s)", s.Path)
}

func (s *YamlFileSource) Load() (map[string]any, error) {
	data, err := readFile(s.Path, s.Optional)
	if data == nil || err != nil {
		return make(map[string]any), err
	}

	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if result == nil {
		result = make(map[string]any)
	}
	return result, nil
}

// DotEnvSource .env 文件配置源。键的处理方式与环境变量相同：
// 小写，"__" 或 "_" 作为层级分隔符。
type DotEnvSource struct {
	Path     string
	Optional bool
	Prefix   string
}

func (s *DotEnvSource) Name() string {
	return fmt.Sprintf("DotEnv(%s)", s.Path)
}

func (s *DotEnvSource) Load() (map[string]any, error) {
	values, err := godotenv.Read(s.Path)
	if err != nil {
		if s.Optional && errors.Is(err, fs.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("failed to parse .env: %w", err)
	}

	result := make(map[string]any)
	for key, value := range values {
		if k, ok := envKey(key, s.Prefix); ok {
			setNestedValue(result, k, value)
		}
	}
	return result, nil
}

// EnvironmentVariableSource 环境变量配置源
type EnvironmentVariableSource struct {
	Prefix string
}

func (s *EnvironmentVariableSource) Name() string {
	return fmt.Sprintf("EnvironmentVariables(%s)", s.Prefix)
}

func (s *EnvironmentVariableSource) Load() (map[string]any, error) {
	result := make(map[string]any)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if k, ok := envKey(key, s.Prefix); ok {
			setNestedValue(result, k, value)
		}
	}
	return result, nil
}

// envKey 去掉前缀，转小写，"__" 与 "_" 转为 ":"
func envKey(key, prefix string) (string, bool) {
	if prefix != "" {
		if !strings.HasPrefix(key, prefix) {
			return "", false
		}
		key = strings.TrimPrefix(key, prefix)
	}
	key = strings.Trim(strings.ToLower(key), "_")
	if key == "" {
		return "", false
	}
	key = strings.ReplaceAll(key, "__", "_")
	return strings.ReplaceAll(key, "_", ":"), true
}

// InMemorySource 内存配置源
type InMemorySource struct {
	Data map[string]any
}

func (s *InMemorySource) Name() string {
	return "InMemory"
}

func (s *InMemorySource) Load() (map[string]any, error) {
	result := make(map[string]any)
	mergeMaps(result, s.Data)
	return result, nil
}

// EtcdOptions etcd 配置选项
type EtcdOptions struct {
	Endpoints   []string      // etcd 服务器地址列表
	Username    string        // 用户名（可选）
	Password    string        // 密码（可选）
	Prefix      string        // 键前缀（可选）
	Timeout     time.Duration // 读取超时时间（默认 5 秒）
	DialTimeout time.Duration // 拨号超时时间（默认 5 秒）
}

// EtcdSource etcd 配置源。KV 为空时按 Options 创建客户端，用完即关闭。
type EtcdSource struct {
	Options EtcdOptions
	KV      clientv3.KV
}

func (s *EtcdSource) Name() string {
	return fmt.Sprintf("Etcd(%v)", s.Options.Endpoints)
}

func (s *EtcdSource) Load() (map[string]any, error) {
	kv := s.KV
	if kv == nil {
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   s.Options.Endpoints,
			Username:    s.Options.Username,
			Password:    s.Options.Password,
			DialTimeout: s.Options.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd client: %w", err)
		}
		defer cli.Close()
		kv = cli
	}

	timeout := s.Options.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	prefix := s.Options.Prefix
	if prefix == "" {
		prefix = "/"
	}
	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get config from etcd: %w", err)
	}

	result := make(map[string]any)
	for _, item := range resp.Kvs {
		key := strings.TrimPrefix(string(item.Key), s.Options.Prefix)
		key = strings.Trim(key, "/")
		if key == "" {
			continue
		}
		setNestedValue(result, strings.ReplaceAll(key, "/", ":"), decodeEtcdValue(item.Value))
	}
	return result, nil
}

// decodeEtcdValue 依次尝试 JSON、YAML，都失败时按字符串处理。
// YAML 会把任意文本当作标量，因此只接受解析结果为对象或列表的情况。
func decodeEtcdValue(raw []byte) any {
	var jsonValue any
	if err := json.Unmarshal(raw, &jsonValue); err == nil {
		return jsonValue
	}
	var yamlValue any
	if err := yaml.Unmarshal(raw, &yamlValue); err == nil {
		switch yamlValue.(type) {
		case map[string]any, []any:
			return yamlValue
		}
	}
	return string(raw)
}

func readFile(path string, optional bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
