package config

import (
	"fmt"
	"strings"

	"github.com/gocrud/ioc/di"
)

const (
	placeholderPrefix = "${"
	placeholderSuffix = "}"
	// 占位符内第一个 ":" 之后为默认值，键请使用 "." 分隔层级
	placeholderDefaultSeparator = ":"
	maxPlaceholderDepth         = 32
)

// PlaceholderProcessor 在任何 bean 创建之前把定义中的 ${key} / ${key:default}
// 替换为配置值。处理的位置：字符串类型的显式参数与属性值、引用名称与名称提示、
// DependsOn、Scope、初始化与销毁方法名。
type PlaceholderProcessor struct {
	Config Configuration
	// IgnoreUnresolvable 为 true 时保留无法解析的占位符原文
	IgnoreUnresolvable bool
}

// NewPlaceholderProcessor 创建占位符处理器
func NewPlaceholderProcessor(cfg Configuration) *PlaceholderProcessor {
	return &PlaceholderProcessor{Config: cfg}
}

// Order 在其他定义处理器之前执行
func (p *PlaceholderProcessor) Order() int {
	return di.HighestPrecedence + 100
}

// PostProcessDefinitions 实现 di.DefinitionPostProcessor
func (p *PlaceholderProcessor) PostProcessDefinitions(f *di.Factory) error {
	for _, name := range f.Names() {
		def, err := f.Get(name)
		if err != nil {
			continue
		}
		changed, err := p.resolveDefinition(def)
		if err != nil {
			return fmt.Errorf("config: definition '%s': %w", name, err)
		}
		if !changed {
			continue
		}
		if err := f.UpdateDefinition(name, func(d *di.Definition) { *d = *def }); err != nil {
			return err
		}
	}
	return nil
}

func (p *PlaceholderProcessor) resolveDefinition(def *di.Definition) (bool, error) {
	r := &definitionResolver{p: p}

	r.str(&def.Scope)
	r.str(&def.DestroyMethod)
	for i := range def.InitMethods {
		r.str(&def.InitMethods[i])
	}
	for i := range def.DependsOn {
		r.str(&def.DependsOn[i])
	}
	for i := range def.Args {
		r.arg(&def.Args[i])
	}
	for i := range def.Properties {
		r.arg(&def.Properties[i].Arg)
	}
	return r.changed, r.err
}

type definitionResolver struct {
	p       *PlaceholderProcessor
	changed bool
	err     error
}

func (r *definitionResolver) str(s *string) {
	if r.err != nil || !strings.Contains(*s, placeholderPrefix) {
		return
	}
	resolved, err := r.p.Resolve(*s)
	if err != nil {
		r.err = err
		return
	}
	if resolved != *s {
		*s = resolved
		r.changed = true
	}
}

func (r *definitionResolver) arg(a *di.Arg) {
	r.str(&a.Ref)
	r.str(&a.Hint)
	if s, ok := a.Value.(string); ok && a.Kind == di.ArgValue {
		r.str(&s)
		a.Value = s
	}
}

// Resolve 替换字符串中的所有占位符，默认值与解析出的值中的占位符会继续解析
func (p *PlaceholderProcessor) Resolve(s string) (string, error) {
	return p.resolve(s, nil)
}

func (p *PlaceholderProcessor) resolve(s string, visiting []string) (string, error) {
	if len(visiting) > maxPlaceholderDepth {
		return "", fmt.Errorf("placeholders nested too deeply: %s", strings.Join(visiting, " -> "))
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, placeholderPrefix)
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := matchingSuffix(rest, start+len(placeholderPrefix))
		if end < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])

		body := rest[start+len(placeholderPrefix) : end]
		value, err := p.resolvePlaceholder(body, rest[start:end+1], visiting)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		rest = rest[end+len(placeholderSuffix):]
	}
}

func (p *PlaceholderProcessor) resolvePlaceholder(body, raw string, visiting []string) (string, error) {
	key, def, hasDefault := strings.Cut(body, placeholderDefaultSeparator)
	key, err := p.resolve(key, visiting)
	if err != nil {
		return "", err
	}
	for _, v := range visiting {
		if v == key {
			return "", fmt.Errorf("circular placeholder reference: %s -> %s", strings.Join(visiting, " -> "), key)
		}
	}

	if value, ok := p.Config.Lookup(key); ok {
		return p.resolve(value, append(visiting, key))
	}
	if hasDefault {
		return p.resolve(def, visiting)
	}
	if p.IgnoreUnresolvable {
		return raw, nil
	}
	return "", fmt.Errorf("could not resolve placeholder '%s'", key)
}

// matchingSuffix 找到与 from 之前的 "${" 配对的 "}"，跳过嵌套占位符
func matchingSuffix(s string, from int) int {
	depth := 0
	for i := from; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], placeholderPrefix):
			depth++
			i += len(placeholderPrefix) - 1
		case strings.HasPrefix(s[i:], placeholderSuffix):
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
