package session

import (
	"sync"
	"time"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// Manager 会话管理最小实现：记录设备最近上报时间，判断是否在线，
// 并为每台设备提供处理锁（同一设备的消息必须串行处理）。
type Manager struct {
	mu       sync.RWMutex
	lastSeen map[coremodel.DeviceID]time.Time
	locks    map[coremodel.DeviceID]*sync.Mutex
	timeout  time.Duration
}

func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Manager{
		lastSeen: make(map[coremodel.DeviceID]time.Time),
		locks:    make(map[coremodel.DeviceID]*sync.Mutex),
		timeout:  timeout,
	}
}

// Touch 更新设备最近上报时间
func (m *Manager) Touch(deviceID coremodel.DeviceID, t time.Time) {
	m.mu.Lock()
	m.lastSeen[deviceID] = t
	m.mu.Unlock()
}

// DeviceLock 返回设备专属互斥锁，不存在则创建。
// 不同设备的锁互不相关，跨设备处理可以并行。
func (m *Manager) DeviceLock(deviceID coremodel.DeviceID) *sync.Mutex {
	m.mu.RLock()
	l, ok := m.locks[deviceID]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[deviceID]; ok {
		return l
	}
	l = &sync.Mutex{}
	m.locks[deviceID] = l
	return l
}

// LastSeen 返回设备最近上报时间
func (m *Manager) LastSeen(deviceID coremodel.DeviceID) (time.Time, bool) {
	m.mu.RLock()
	ts, ok := m.lastSeen[deviceID]
	m.mu.RUnlock()
	return ts, ok
}

// IsOnline 判断设备是否在线
func (m *Manager) IsOnline(deviceID coremodel.DeviceID, now time.Time) bool {
	m.mu.RLock()
	ts, ok := m.lastSeen[deviceID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(ts) <= m.timeout
}

// OnlineCount 返回当前在线设备数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, ts := range m.lastSeen {
		if now.Sub(ts) <= m.timeout {
			count++
		}
	}
	return count
}

// Forget 移除设备会话状态（设备解绑时调用）
func (m *Manager) Forget(deviceID coremodel.DeviceID) {
	m.mu.Lock()
	delete(m.lastSeen, deviceID)
	delete(m.locks, deviceID)
	m.mu.Unlock()
}
