package strategy

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"backlab/internal/logger"
	"backlab/internal/market"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Profile 描述单个策略的启用状态与参数表。
type Profile struct {
	Enabled bool           `yaml:"enabled"`
	Params  map[string]any `yaml:"params"`
}

// FileConfig 映射 strategies 配置文件。
type FileConfig struct {
	Strategies map[string]Profile `yaml:"strategies"`
}

// Snapshot 是某一时刻的策略配置快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// ChangeListener 在配置重载成功后触发。
type ChangeListener func(Snapshot)

// Registry 管理策略参数配置：JSON Schema 校验 + 文件热更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取策略配置文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path: %w", market.ErrInvalidParameter)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy config reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Subscribe 注册重载回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Snapshot 返回当前配置快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Generators 按名称排序构造所有启用策略。
// 配置在 reload 时已整体校验过，这里仍逐个返回构造错误。
func (r *Registry) Generators() ([]Generator, error) {
	snap := r.Snapshot()
	names := make([]string, 0, len(snap.Profiles))
	for name, prof := range snap.Profiles {
		if prof.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]Generator, 0, len(names))
	for _, name := range names {
		gen, err := New(name, snap.Profiles[name].Params)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	return out, nil
}

// Params 返回某个策略当前配置的参数表；未配置时返回 nil，
// 由构造函数填充默认值。禁用的策略同样拒绝。
func (r *Registry) Params(name string) (map[string]any, error) {
	if _, ok := paramSchemas[name]; !ok {
		return nil, fmt.Errorf("unknown strategy %q: %w", name, market.ErrInvalidParameter)
	}
	snap := r.Snapshot()
	prof, ok := snap.Profiles[name]
	if !ok {
		return nil, nil
	}
	if !prof.Enabled {
		return nil, fmt.Errorf("strategy %q is disabled: %w", name, market.ErrInvalidParameter)
	}
	return prof.Params, nil
}

func (r *Registry) reload() error {
	cfg, err := readProfileFile(r.path)
	if err != nil {
		return err
	}
	profiles := make(map[string]Profile, len(cfg.Strategies))
	for name, prof := range cfg.Strategies {
		name = strings.TrimSpace(name)
		schema, ok := paramSchemas[name]
		if !ok {
			return fmt.Errorf("unknown strategy %q in %s: %w", name, r.path, market.ErrInvalidParameter)
		}
		if err := schema.Validate(normalizeParams(prof.Params)); err != nil {
			return fmt.Errorf("strategy %s params invalid: %v: %w", name, err, market.ErrInvalidParameter)
		}
		// Schema 只查类型和单字段范围，跨字段约束由构造函数兜底。
		if _, err := New(name, prof.Params); err != nil {
			return fmt.Errorf("strategy %s rejected: %w", name, err)
		}
		profiles[name] = prof
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	logger.Infof("strategy registry loaded %d profiles from %s", len(profiles), r.path)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("strategy listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Profile, len(src.Profiles)),
	}
	for name, prof := range src.Profiles {
		dst.Profiles[name] = prof
	}
	return dst
}

func readProfileFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategy config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategy config failed: %v: %w", err, market.ErrInvalidData)
	}
	return cfg, nil
}

// normalizeParams 将 yaml 解出的 int 统一成 float64，便于 schema 校验。
func normalizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}

var paramSchemas = map[string]*jsonschema.Schema{
	NameSMACross: mustCompileSchema(`{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"short_window": {"type": "integer", "minimum": 1},
			"long_window": {"type": "integer", "minimum": 2}
		}
	}`),
	NameRSIBollinger: mustCompileSchema(`{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"rsi_window": {"type": "integer", "minimum": 1},
			"rsi_oversold": {"type": "number", "minimum": 0, "maximum": 100},
			"rsi_overbought": {"type": "number", "minimum": 0, "maximum": 100},
			"bb_window": {"type": "integer", "minimum": 1},
			"bb_std": {"type": "number", "exclusiveMinimum": 0}
		}
	}`),
	NameVWAPReversion: mustCompileSchema(`{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"entry_threshold": {"type": "number", "exclusiveMinimum": 0},
			"exit_threshold": {"type": "number", "minimum": 0}
		}
	}`),
}

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("schema.json")
}
