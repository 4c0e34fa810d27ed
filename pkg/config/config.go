// Package config provides the key/value configuration consumed by the gateway.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，例如 ApiURL 也可以通过 CRYPTSY_APIURL 提供
const EnvPrefix = "CRYPTSY_"

// Provider resolves keys from, in order: the exact environment variable,
// the prefixed upper-case environment variable, the YAML file, defaults.
type Provider struct {
	mu       sync.RWMutex
	file     map[string]string
	defaults map[string]string
	lookup   func(string) (string, bool)
}

// Option configures a Provider.
type Option func(*Provider) error

// WithYAMLFile loads a flat YAML mapping. A missing file is not an error.
func WithYAMLFile(path string) Option {
	return func(p *Provider) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("读取配置文件失败: %w", err)
		}
		return p.loadYAML(data)
	}
}

// WithYAML loads YAML content directly.
func WithYAML(data []byte) Option {
	return func(p *Provider) error { return p.loadYAML(data) }
}

// WithDotEnv loads .env files into the process environment. Missing files are skipped.
func WithDotEnv(files ...string) Option {
	return func(p *Provider) error {
		if len(files) == 0 {
			files = []string{".env"}
		}
		var existing []string
		for _, f := range files {
			if _, err := os.Stat(f); err == nil {
				existing = append(existing, f)
			}
		}
		if len(existing) == 0 {
			return nil
		}
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("加载 .env 失败: %w", err)
		}
		return nil
	}
}

// WithDefaults sets fallback values.
func WithDefaults(values map[string]string) Option {
	return func(p *Provider) error {
		for k, v := range values {
			p.defaults[k] = v
		}
		return nil
	}
}

// WithLookup replaces the environment lookup, mostly for tests.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(p *Provider) error {
		p.lookup = fn
		return nil
	}
}

// New builds a Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		file:     make(map[string]string),
		defaults: make(map[string]string),
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// FromMap builds a Provider backed only by values. Environment is ignored.
func FromMap(values map[string]string) *Provider {
	p, _ := New(WithLookup(func(string) (string, bool) { return "", false }), WithDefaults(values))
	return p
}

func (p *Provider) loadYAML(data []byte) error {
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("解析 YAML 配置失败: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			p.file[k] = strings.Join(parts, ",")
		default:
			p.file[k] = fmt.Sprint(val)
		}
	}
	return nil
}

// GetString returns the value for key, or "" when unset.
func (p *Provider) GetString(key string) string {
	if v, ok := p.lookup(key); ok && v != "" {
		return v
	}
	if v, ok := p.lookup(EnvPrefix + strings.ToUpper(key)); ok && v != "" {
		return v
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.file[key]; ok && v != "" {
		return v
	}
	return p.defaults[key]
}

// MissingKeysError lists required keys without a value.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Require reports every key in keys that resolves to "".
func (p *Provider) Require(keys ...string) error {
	return Require(p, keys...)
}

// Require checks keys against any string getter.
func Require(p interface{ GetString(string) string }, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(p.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingKeysError{Keys: missing}
}
