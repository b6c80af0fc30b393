package datalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// KindDatalog datalog 消息所在的消息类别
const KindDatalog uint16 = 0x0040

// datalog 命令字节
const (
	cmdOpen  byte = 0x01
	cmdData  byte = 0x02
	cmdClose byte = 0x03
	CmdAck   byte = 0x85
	CmdNack  byte = 0x86
)

var (
	ErrShort           = errors.New("datalog message too short")
	ErrBadItemSize     = errors.New("datalog item size must be positive")
	ErrUnknownSession  = errors.New("datalog session unknown")
	ErrSessionConflict = errors.New("datalog session id conflict")
	ErrBadCommand      = errors.New("datalog command unknown")
)

// ItemHandler 按日志标签解释重组出的完整条目
type ItemHandler interface {
	Tag() uint32
	// OnItems 把一批完整条目翻译为规范化事件，条目按到达顺序给出
	OnItems(deviceID coremodel.DeviceID, s *Session, items [][]byte) []*coremodel.DeviceEvent
}

type sessionKey struct {
	dev coremodel.DeviceID
	id  uint8
}

// Tracker datalog 会话跟踪器。
// 会话号在单台设备内唯一；跨设备由组合键隔离。
// 同设备的消息由上游保证串行进入，这里的锁只隔离不同设备。
type Tracker struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
	handlers map[uint32]ItemHandler
	log      *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[sessionKey]*Session),
		handlers: make(map[uint32]ItemHandler),
		log:      log,
	}
}

// RegisterHandler 注册日志标签解释器
func (t *Tracker) RegisterHandler(h ItemHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[h.Tag()] = h
}

// HandleMessage 处理一条 datalog 消息并返回产生的事件与应答字节。
// 协议错误通过 NACK 应答反馈给设备，不会中断处理循环。
func (t *Tracker) HandleMessage(deviceID coremodel.DeviceID, payload []byte) ([]*coremodel.DeviceEvent, []byte, error) {
	if len(payload) < 2 {
		return nil, nil, ErrShort
	}
	cmd, id := payload[0], payload[1]

	switch cmd {
	case cmdOpen:
		if err := t.open(deviceID, id, payload); err != nil {
			return nil, buildNack(id), err
		}
		return nil, buildAck(id), nil

	case cmdData:
		events, err := t.appendData(deviceID, id, payload)
		if err != nil {
			return nil, buildNack(id), err
		}
		return events, buildAck(id), nil

	case cmdClose:
		if err := t.close(deviceID, id); err != nil {
			return nil, buildNack(id), err
		}
		return nil, buildAck(id), nil

	default:
		return nil, buildNack(id), fmt.Errorf("%w: 0x%02x", ErrBadCommand, cmd)
	}
}

// open 解析并登记新会话。
// 布局: cmd u8, id u8, uuid 16B, timestamp u32, tag u32, itemType u8, itemSize u16（大端）。
func (t *Tracker) open(deviceID coremodel.DeviceID, id uint8, payload []byte) error {
	if len(payload) < 29 {
		return fmt.Errorf("%w: open", ErrShort)
	}

	owner, err := uuid.FromBytes(payload[2:18])
	if err != nil {
		return fmt.Errorf("open session %d: %w", id, err)
	}
	ts := binary.BigEndian.Uint32(payload[18:22])
	tag := binary.BigEndian.Uint32(payload[22:26])
	itemType := payload[26]
	itemSize := binary.BigEndian.Uint16(payload[27:29])

	if itemSize == 0 {
		return fmt.Errorf("%w: session %d", ErrBadItemSize, id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{dev: deviceID, id: id}
	if prev, ok := t.sessions[key]; ok {
		// 同号会话仍然存活：强制关闭旧会话并丢弃其残余数据
		if t.log != nil {
			t.log.Warn("datalog session reopened, discarding previous occupant",
				zap.String("device_id", string(deviceID)),
				zap.Uint8("session_id", id),
				zap.Uint32("prev_tag", prev.Tag),
				zap.Int("discarded_bytes", prev.PendingBytes()))
		}
		prev.State = StateClosed
		delete(t.sessions, key)
	}

	t.sessions[key] = &Session{
		ID:        id,
		Tag:       tag,
		OwnerUUID: owner,
		ItemType:  itemType,
		ItemSize:  itemSize,
		StartedAt: time.Unix(int64(ts), 0).UTC(),
		State:     StateOpen,
	}

	if t.log != nil {
		t.log.Debug("datalog session opened",
			zap.String("device_id", string(deviceID)),
			zap.Uint8("session_id", id),
			zap.Uint32("tag", tag),
			zap.String("owner_uuid", owner.String()),
			zap.Uint16("item_size", itemSize))
	}
	return nil
}

// appendData 并入数据块并分发完整条目。
// 布局: cmd u8, id u8, itemsLeft u32, crc u32, data…（itemsLeft/crc 仅作诊断）。
func (t *Tracker) appendData(deviceID coremodel.DeviceID, id uint8, payload []byte) ([]*coremodel.DeviceEvent, error) {
	if len(payload) < 10 {
		return nil, fmt.Errorf("%w: data", ErrShort)
	}
	data := payload[10:]

	t.mu.Lock()
	key := sessionKey{dev: deviceID, id: id}
	s, ok := t.sessions[key]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: device %s session %d", ErrUnknownSession, deviceID, id)
	}
	items := s.append(data)
	handler := t.handlers[s.Tag]
	t.mu.Unlock()

	if len(items) == 0 {
		return nil, nil
	}
	if handler == nil {
		if t.log != nil {
			t.log.Debug("datalog items without handler, dropped",
				zap.String("device_id", string(deviceID)),
				zap.Uint32("tag", s.Tag),
				zap.Int("items", len(items)))
		}
		return nil, nil
	}
	return handler.OnItems(deviceID, s, items), nil
}

// close 关闭会话。残余的不完整条目丢弃并记录。
func (t *Tracker) close(deviceID coremodel.DeviceID, id uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{dev: deviceID, id: id}
	s, ok := t.sessions[key]
	if !ok {
		return fmt.Errorf("%w: device %s session %d", ErrUnknownSession, deviceID, id)
	}

	if s.PendingBytes() > 0 && t.log != nil {
		t.log.Warn("datalog session closed with partial item, discarded",
			zap.String("device_id", string(deviceID)),
			zap.Uint8("session_id", id),
			zap.Uint32("tag", s.Tag),
			zap.Int("discarded_bytes", s.PendingBytes()))
	}
	s.State = StateClosed
	delete(t.sessions, key)

	if t.log != nil {
		t.log.Debug("datalog session closed",
			zap.String("device_id", string(deviceID)),
			zap.Uint8("session_id", id),
			zap.Int("items_total", s.ItemsTotal()))
	}
	return nil
}

// SessionCount 当前存活会话数
func (t *Tracker) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot 返回某设备会话的只读快照，用于诊断接口
func (t *Tracker) Snapshot(deviceID coremodel.DeviceID) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Session
	for key, s := range t.sessions {
		if key.dev == deviceID {
			out = append(out, *s)
		}
	}
	return out
}

func buildAck(id uint8) []byte  { return []byte{CmdAck, id} }
func buildNack(id uint8) []byte { return []byte{CmdNack, id} }
