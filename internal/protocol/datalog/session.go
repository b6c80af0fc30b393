package datalog

import (
	"time"

	"github.com/google/uuid"
)

// State 会话状态
type State string

const (
	StateOpen      State = "open"      // 已打开，尚未收到数据
	StateReceiving State = "receiving" // 已收到至少一个数据块
	StateClosed    State = "closed"    // 已关闭
)

// Session 单个 datalog 会话。
// 同一设备上会话号是复用的：关闭后同号可再次打开。
type Session struct {
	ID        uint8
	Tag       uint32
	OwnerUUID uuid.UUID
	ItemType  uint8
	ItemSize  uint16
	StartedAt time.Time
	State     State

	// buf 尚未凑满一个条目的残余字节
	buf []byte
	// itemsTotal 本会话已重组出的完整条目数
	itemsTotal int
}

// PendingBytes 当前缓冲的不完整条目字节数
func (s *Session) PendingBytes() int { return len(s.buf) }

// ItemsTotal 已重组的完整条目数
func (s *Session) ItemsTotal() int { return s.itemsTotal }

// append 把新数据并入缓冲并切出完整条目。条目按到达顺序返回。
// 收到第一个数据块即进入 Receiving，不要求凑满条目。
func (s *Session) append(data []byte) [][]byte {
	s.State = StateReceiving
	s.buf = append(s.buf, data...)
	size := int(s.ItemSize)

	var items [][]byte
	for len(s.buf) >= size {
		item := make([]byte, size)
		copy(item, s.buf[:size])
		items = append(items, item)
		s.buf = s.buf[size:]
	}
	s.itemsTotal += len(items)
	return items
}
