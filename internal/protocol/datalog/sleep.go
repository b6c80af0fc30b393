package datalog

import (
	"encoding/binary"
	"time"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// TagSleep 睡眠监测数据的日志标签
const TagSleep uint32 = 81

// SleepItemSize 睡眠条目固定 4 字节（大端 u32）
const SleepItemSize = 4

// 睡眠条目的最高字节区分普通采样点与控制记录。
// 活动强度是每分钟的小数值，到不了控制前缀的量级，不会撞车。
// 控制记录低 24 位携带参数（闹钟触发分钟 / 智能闹钟窗口的分钟数）。
const (
	sleepCtrlShift          = 24
	sleepCtrlParamMask      = 0x00ffffff
	sleepCtrlAlarmGoneOff   = 0xa1
	sleepCtrlSmartAlarmFrom = 0xa2
	sleepCtrlSmartAlarmTo   = 0xa3
)

// SleepHandler 把睡眠日志条目重组为睡眠监测结果事件。
// 采样点顺序即采样顺序，RecordingBase 取会话打开时间；
// 闹钟控制记录填充 AlarmGoneOff 与智能闹钟窗口字段。
type SleepHandler struct{}

func NewSleepHandler() *SleepHandler { return &SleepHandler{} }

func (h *SleepHandler) Tag() uint32 { return TagSleep }

func (h *SleepHandler) OnItems(deviceID coremodel.DeviceID, s *Session, items [][]byte) []*coremodel.DeviceEvent {
	payload := &coremodel.SleepMonitorPayload{
		DeviceID:      deviceID,
		RecordingBase: s.StartedAt,
	}

	points := make([]int32, 0, len(items))
	for _, item := range items {
		if len(item) < SleepItemSize {
			continue
		}
		v := binary.BigEndian.Uint32(item[:4])
		param := int32(v & sleepCtrlParamMask)

		switch v >> sleepCtrlShift {
		case sleepCtrlAlarmGoneOff:
			payload.AlarmGoneOff = true
		case sleepCtrlSmartAlarmFrom:
			payload.SmartAlarmFrom = &param
		case sleepCtrlSmartAlarmTo:
			payload.SmartAlarmTo = &param
		default:
			points = append(points, int32(v))
		}
	}
	payload.Points = points

	// 单独的闹钟记录也要上报，设备可能只发闹钟状态不带采样
	if len(points) == 0 && !payload.AlarmGoneOff && payload.SmartAlarmFrom == nil && payload.SmartAlarmTo == nil {
		return nil
	}

	return []*coremodel.DeviceEvent{{
		Type:         coremodel.EventSleepMonitorResult,
		DeviceID:     deviceID,
		OccurredAt:   time.Now(),
		SleepMonitor: payload,
	}}
}
