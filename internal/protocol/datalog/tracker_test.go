package datalog

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

var sleepUUID = uuid.MustParse("00000000-0000-0000-0000-0000deadbeef")

func buildOpen(id uint8, owner uuid.UUID, ts uint32, tag uint32, itemType uint8, itemSize uint16) []byte {
	out := []byte{cmdOpen, id}
	out = append(out, owner[:]...)
	out = binary.BigEndian.AppendUint32(out, ts)
	out = binary.BigEndian.AppendUint32(out, tag)
	out = append(out, itemType)
	out = binary.BigEndian.AppendUint16(out, itemSize)
	return out
}

func buildData(id uint8, data []byte) []byte {
	out := []byte{cmdData, id}
	out = binary.BigEndian.AppendUint32(out, 0) // itemsLeft
	out = binary.BigEndian.AppendUint32(out, 0) // crc
	return append(out, data...)
}

func buildClose(id uint8) []byte { return []byte{cmdClose, id} }

func newSleepTracker() *Tracker {
	t := NewTracker(zap.NewNop())
	t.RegisterHandler(NewSleepHandler())
	return t
}

func TestTracker_OpenDataClose(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	events, reply, err := tr.HandleMessage(dev, buildOpen(3, sleepUUID, 1700000000, TagSleep, 0, SleepItemSize))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if reply[0] != CmdAck || reply[1] != 3 {
		t.Fatalf("expected ack for session 3, got %x", reply)
	}
	if len(events) != 0 {
		t.Errorf("open should not produce events")
	}

	// 两个完整条目: 强度 5 和 9
	data := binary.BigEndian.AppendUint32(nil, 5)
	data = binary.BigEndian.AppendUint32(data, 9)
	events, reply, err = tr.HandleMessage(dev, buildData(3, data))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	if reply[0] != CmdAck {
		t.Errorf("expected ack, got %x", reply)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != coremodel.EventSleepMonitorResult || ev.SleepMonitor == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.SleepMonitor.Points) != 2 || ev.SleepMonitor.Points[0] != 5 || ev.SleepMonitor.Points[1] != 9 {
		t.Errorf("points mismatch: %v", ev.SleepMonitor.Points)
	}
	if ev.SleepMonitor.RecordingBase.Unix() != 1700000000 {
		t.Errorf("recording base mismatch: %v", ev.SleepMonitor.RecordingBase)
	}

	_, reply, err = tr.HandleMessage(dev, buildClose(3))
	if err != nil {
		t.Fatalf("close error: %v", err)
	}
	if reply[0] != CmdAck {
		t.Errorf("expected ack, got %x", reply)
	}
	if tr.SessionCount() != 0 {
		t.Errorf("session should be removed after close")
	}
}

func TestTracker_PartialItemBuffered(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, _, _ = tr.HandleMessage(dev, buildOpen(1, sleepUUID, 0, TagSleep, 0, SleepItemSize))

	// 6 字节 = 1个完整条目 + 2字节残余
	data := binary.BigEndian.AppendUint32(nil, 7)
	data = append(data, 0xaa, 0xbb)
	events, _, err := tr.HandleMessage(dev, buildData(1, data))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	if len(events) != 1 || len(events[0].SleepMonitor.Points) != 1 {
		t.Fatalf("expected 1 point, got %+v", events)
	}

	// 残余补齐后构成下一个条目
	events, _, err = tr.HandleMessage(dev, buildData(1, []byte{0x00, 0x08}))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected completion event, got %d", len(events))
	}
	var want uint32 = 0xaabb0008
	if p := events[0].SleepMonitor.Points[0]; p != int32(want) {
		t.Errorf("reassembled point mismatch: %d", p)
	}
}

func TestTracker_SleepAlarmRecords(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, _, _ = tr.HandleMessage(dev, buildOpen(4, sleepUUID, 1700000000, TagSleep, 0, SleepItemSize))

	// 采样点 3、闹钟窗口 420-450 分钟、闹钟已触发、采样点 6
	data := binary.BigEndian.AppendUint32(nil, 3)
	data = binary.BigEndian.AppendUint32(data, sleepCtrlSmartAlarmFrom<<sleepCtrlShift|420)
	data = binary.BigEndian.AppendUint32(data, sleepCtrlSmartAlarmTo<<sleepCtrlShift|450)
	data = binary.BigEndian.AppendUint32(data, sleepCtrlAlarmGoneOff<<sleepCtrlShift)
	data = binary.BigEndian.AppendUint32(data, 6)

	events, _, err := tr.HandleMessage(dev, buildData(4, data))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	sm := events[0].SleepMonitor
	if !sm.AlarmGoneOff {
		t.Errorf("alarm must be reported as gone off")
	}
	if sm.SmartAlarmFrom == nil || *sm.SmartAlarmFrom != 420 {
		t.Errorf("smart alarm from mismatch: %v", sm.SmartAlarmFrom)
	}
	if sm.SmartAlarmTo == nil || *sm.SmartAlarmTo != 450 {
		t.Errorf("smart alarm to mismatch: %v", sm.SmartAlarmTo)
	}
	// 控制记录不混入采样点
	if len(sm.Points) != 2 || sm.Points[0] != 3 || sm.Points[1] != 6 {
		t.Errorf("points mismatch: %v", sm.Points)
	}
}

func TestTracker_SleepAlarmOnly(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, _, _ = tr.HandleMessage(dev, buildOpen(6, sleepUUID, 0, TagSleep, 0, SleepItemSize))

	// 只有闹钟记录、没有采样点也要产出事件
	data := binary.BigEndian.AppendUint32(nil, sleepCtrlAlarmGoneOff<<sleepCtrlShift)
	events, _, err := tr.HandleMessage(dev, buildData(6, data))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	if len(events) != 1 || !events[0].SleepMonitor.AlarmGoneOff {
		t.Fatalf("alarm-only batch must produce an event, got %+v", events)
	}
	if len(events[0].SleepMonitor.Points) != 0 {
		t.Errorf("no points expected, got %v", events[0].SleepMonitor.Points)
	}
}

func TestTracker_ReceivingOnPartialChunk(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, _, _ = tr.HandleMessage(dev, buildOpen(8, sleepUUID, 0, TagSleep, 0, SleepItemSize))
	snap := tr.Snapshot(dev)
	if len(snap) != 1 || snap[0].State != StateOpen {
		t.Fatalf("fresh session must be open: %+v", snap)
	}

	// 不足一个条目的数据块也要让会话进入 receiving
	_, _, err := tr.HandleMessage(dev, buildData(8, []byte{0x01, 0x02}))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	snap = tr.Snapshot(dev)
	if snap[0].State != StateReceiving {
		t.Errorf("partial chunk must move session to receiving, got %s", snap[0].State)
	}
}

func TestTracker_ReopenForcesClose(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, _, _ = tr.HandleMessage(dev, buildOpen(5, sleepUUID, 0, TagSleep, 0, SleepItemSize))
	// 留下2字节残余
	_, _, _ = tr.HandleMessage(dev, buildData(5, []byte{0x01, 0x02}))

	// 同号重新打开：旧会话被强制关闭，残余丢弃
	_, reply, err := tr.HandleMessage(dev, buildOpen(5, sleepUUID, 0, TagSleep, 0, SleepItemSize))
	if err != nil {
		t.Fatalf("reopen must succeed: %v", err)
	}
	if reply[0] != CmdAck {
		t.Errorf("reopen should be acked, got %x", reply)
	}

	// 新会话从零开始：2字节不构成条目
	events, _, err := tr.HandleMessage(dev, buildData(5, []byte{0x03, 0x04}))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("old partial must not leak into new session")
	}
}

func TestTracker_ZeroItemSizeRejected(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, reply, err := tr.HandleMessage(dev, buildOpen(2, sleepUUID, 0, TagSleep, 0, 0))
	if !errors.Is(err, ErrBadItemSize) {
		t.Fatalf("expected ErrBadItemSize, got %v", err)
	}
	if reply[0] != CmdNack {
		t.Errorf("expected nack, got %x", reply)
	}
	if tr.SessionCount() != 0 {
		t.Errorf("rejected open must not register a session")
	}
}

func TestTracker_UnknownSession(t *testing.T) {
	tr := newSleepTracker()
	dev := coremodel.DeviceID("watch-1")

	_, reply, err := tr.HandleMessage(dev, buildData(9, []byte{0x01}))
	if !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if reply[0] != CmdNack || reply[1] != 9 {
		t.Errorf("expected nack for session 9, got %x", reply)
	}

	_, reply, err = tr.HandleMessage(dev, buildClose(9))
	if !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("close unknown session: expected error, got %v", err)
	}
	if reply[0] != CmdNack {
		t.Errorf("expected nack, got %x", reply)
	}
}

func TestTracker_DevicesIsolated(t *testing.T) {
	tr := newSleepTracker()

	_, _, _ = tr.HandleMessage("watch-a", buildOpen(1, sleepUUID, 0, TagSleep, 0, SleepItemSize))
	_, _, _ = tr.HandleMessage("watch-b", buildOpen(1, sleepUUID, 0, TagSleep, 0, SleepItemSize))

	if tr.SessionCount() != 2 {
		t.Fatalf("same session id on different devices must coexist, got %d", tr.SessionCount())
	}

	// watch-b 的数据不影响 watch-a
	_, _, err := tr.HandleMessage("watch-b", buildData(1, binary.BigEndian.AppendUint32(nil, 1)))
	if err != nil {
		t.Fatalf("data error: %v", err)
	}
	snap := tr.Snapshot("watch-a")
	if len(snap) != 1 || snap[0].ItemsTotal() != 0 {
		t.Errorf("watch-a session must be untouched: %+v", snap)
	}
}

func TestTracker_UnknownCommand(t *testing.T) {
	tr := newSleepTracker()
	_, reply, err := tr.HandleMessage("watch-1", []byte{0x7e, 0x01})
	if !errors.Is(err, ErrBadCommand) {
		t.Fatalf("expected ErrBadCommand, got %v", err)
	}
	if reply[0] != CmdNack {
		t.Errorf("expected nack, got %x", reply)
	}
}
