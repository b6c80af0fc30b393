package app

import (
	"sync"
	"time"

	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
)

// WeatherStore 宿主推送的天气快照，供各天气应用编解码器应答手表请求。
// 实现 appmsg.WeatherSource。
type WeatherStore struct {
	mu      sync.RWMutex
	current *appmsg.WeatherInfo
	maxAge  time.Duration
}

// NewWeatherStore 创建天气存储。maxAge <= 0 时快照永不过期。
func NewWeatherStore(maxAge time.Duration) *WeatherStore {
	return &WeatherStore{maxAge: maxAge}
}

// Update 写入最新天气快照
func (s *WeatherStore) Update(info *appmsg.WeatherInfo) {
	s.mu.Lock()
	s.current = info
	s.mu.Unlock()
}

// Current 返回当前快照，过期或未设置时返回 nil
func (s *WeatherStore) Current() *appmsg.WeatherInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	if s.maxAge > 0 && time.Since(s.current.Timestamp) > s.maxAge {
		return nil
	}
	cp := *s.current
	return &cp
}
