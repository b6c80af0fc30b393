package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnavailable 清单不存在或当前不可读
	ErrUnavailable = errors.New("manifest unavailable")
	// ErrMalformed 清单存在但内容不合法
	ErrMalformed = errors.New("manifest malformed")
)

// KeyManifest 单个应用的键名清单。加载完成后只读，可并发使用。
type KeyManifest struct {
	AppUUID uuid.UUID
	keys    map[string]uint32
	names   map[uint32]string
}

// KeyID 按键名解析数值键
func (m *KeyManifest) KeyID(name string) (uint32, bool) {
	id, ok := m.keys[name]
	return id, ok
}

// KeyName 按数值键反查键名
func (m *KeyManifest) KeyName(id uint32) (string, bool) {
	name, ok := m.names[id]
	return name, ok
}

// Len 清单中的键数量
func (m *KeyManifest) Len() int { return len(m.keys) }

// Names 返回全部键名（无序）
func (m *KeyManifest) Names() []string {
	out := make([]string, 0, len(m.keys))
	for name := range m.keys {
		out = append(out, name)
	}
	return out
}

func newManifest(appUUID uuid.UUID, keys map[string]uint32) *KeyManifest {
	names := make(map[uint32]string, len(keys))
	for name, id := range keys {
		names[id] = name
	}
	return &KeyManifest{AppUUID: appUUID, keys: keys, names: names}
}

// Resolver 键名清单解析器
type Resolver interface {
	Resolve(appUUID uuid.UUID) (*KeyManifest, error)
}

// DirResolver 基于目录的解析器：每个应用一个文件，
// 文件名为 <uuid>.json / <uuid>.yaml / <uuid>.yml。
// 成功加载的清单缓存进程生命周期内不再变更。
type DirResolver struct {
	dir   string
	mu    sync.RWMutex
	cache map[uuid.UUID]*KeyManifest
}

// NewDirResolver 创建目录解析器
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{
		dir:   dir,
		cache: make(map[uuid.UUID]*KeyManifest),
	}
}

// Resolve 加载并缓存应用清单。
// 不存在返回 ErrUnavailable，内容非法返回 ErrMalformed。
func (r *DirResolver) Resolve(appUUID uuid.UUID) (*KeyManifest, error) {
	r.mu.RLock()
	if m, ok := r.cache[appUUID]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	m, err := r.load(appUUID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// 并发加载时保留先到者，保证同一 UUID 始终返回同一实例
	if prev, ok := r.cache[appUUID]; ok {
		m = prev
	} else {
		r.cache[appUUID] = m
	}
	r.mu.Unlock()
	return m, nil
}

func (r *DirResolver) load(appUUID uuid.UUID) (*KeyManifest, error) {
	base := appUUID.String()
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(r.dir, base+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
		}

		var keys map[string]uint32
		if ext == ".json" {
			keys, err = parseJSONKeys(data)
		} else {
			keys, err = parseYAMLKeys(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: %s: no keys", ErrMalformed, path)
		}
		return newManifest(appUUID, keys), nil
	}
	return nil, fmt.Errorf("%w: no manifest for %s", ErrUnavailable, base)
}

// jsonManifest 兼容两种形态：顶层直接是键表，或包在 appKeys 字段里
type jsonManifest struct {
	AppKeys map[string]uint32 `json:"appKeys"`
}

func parseJSONKeys(data []byte) (map[string]uint32, error) {
	var wrapped jsonManifest
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.AppKeys) > 0 {
		return wrapped.AppKeys, nil
	}

	var flat map[string]uint32
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

type yamlManifest struct {
	AppKeys map[string]uint32 `yaml:"appKeys"`
}

func parseYAMLKeys(data []byte) (map[string]uint32, error) {
	var wrapped yamlManifest
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.AppKeys) > 0 {
		return wrapped.AppKeys, nil
	}

	var flat map[string]uint32
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

// StaticResolver 固定清单集合，主要用于测试与内置应用
type StaticResolver struct {
	manifests map[uuid.UUID]*KeyManifest
}

// NewStaticResolver 从键表直接构建解析器
func NewStaticResolver(tables map[uuid.UUID]map[string]uint32) *StaticResolver {
	manifests := make(map[uuid.UUID]*KeyManifest, len(tables))
	for id, keys := range tables {
		manifests[id] = newManifest(id, keys)
	}
	return &StaticResolver{manifests: manifests}
}

// Resolve 查询固定清单
func (r *StaticResolver) Resolve(appUUID uuid.UUID) (*KeyManifest, error) {
	if m, ok := r.manifests[appUUID]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: no manifest for %s", ErrUnavailable, appUUID)
}
