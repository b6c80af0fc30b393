package appmsg

import (
	"sync"

	"github.com/google/uuid"
)

// Registry 应用 UUID -> 编解码器 的查找表。
// 注册通常发生在启动阶段，运行期以读为主。
type Registry struct {
	mu     sync.RWMutex
	codecs map[uuid.UUID]Codec
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[uuid.UUID]Codec)}
}

// Register 注册编解码器，重复注册同一 UUID 时后者覆盖前者
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.AppUUID()] = c
}

// Lookup 按应用 UUID 查找编解码器
func (r *Registry) Lookup(appUUID uuid.UUID) (Codec, bool) {
	r.mu.RLock()
	c, ok := r.codecs[appUUID]
	r.mu.RUnlock()
	return c, ok
}

// Registered 返回已注册的应用 UUID 列表
func (r *Registry) Registered() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.codecs))
	for id := range r.codecs {
		out = append(out, id)
	}
	return out
}
