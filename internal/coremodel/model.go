package coremodel

import (
	"time"

	"github.com/google/uuid"
)

// DeviceID 统一设备标识类型
type DeviceID string

// BatteryState 电池充电状态
type BatteryState string

const (
	BatteryStateUnknown  BatteryState = "unknown"
	BatteryStateLow      BatteryState = "low"
	BatteryStateNormal   BatteryState = "normal"
	BatteryStateCharging BatteryState = "charging"
)

// AppKind 手表应用类型
type AppKind string

const (
	AppKindUnknown         AppKind = "unknown"
	AppKindGeneric         AppKind = "app"
	AppKindWatchface       AppKind = "watchface"
	AppKindActivityTracker AppKind = "activity_tracker"
	AppKindSystem          AppKind = "system"
	AppKindSystemWatchface AppKind = "system_watchface"
)

// NotificationAction 手表侧对通知的操作
type NotificationAction string

const (
	ActionDismiss    NotificationAction = "dismiss"
	ActionDismissAll NotificationAction = "dismiss_all"
	ActionOpen       NotificationAction = "open"
	ActionMute       NotificationAction = "mute"
	ActionReply      NotificationAction = "reply"
)

// FindPhonePhase 找手机流程阶段
type FindPhonePhase string

const (
	FindPhoneStart FindPhonePhase = "start"
	FindPhoneStop  FindPhonePhase = "stop"
)

// AppEntry 设备上报应用清单中的一项，顺序与设备槽位一致
type AppEntry struct {
	UUID    uuid.UUID
	Name    string
	Creator string
	Kind    AppKind
}

// VersionInfoPayload 固件/硬件版本上报载荷
type VersionInfoPayload struct {
	DeviceID        DeviceID
	FirmwareVersion string
	HardwareModel   string
}

// AppInfoPayload 应用清单上报载荷
type AppInfoPayload struct {
	DeviceID DeviceID
	Apps     []AppEntry
	// FreeSlots 设备侧剩余应用槽位，部分固件不上报
	FreeSlots *int32
}

// SleepMonitorPayload 睡眠监测结果载荷（由 datalog 会话重组产出）
type SleepMonitorPayload struct {
	DeviceID       DeviceID
	RecordingBase  time.Time
	SmartAlarmFrom *int32
	SmartAlarmTo   *int32
	AlarmGoneOff   bool
	// Points 原始采样点（每分钟一个活动强度值）
	Points []int32
}

// NotificationControlPayload 通知操作载荷。
// Reply 动作时 ReplyText 非空；PhoneNumber 仅当设备直接携带号码时设置。
type NotificationControlPayload struct {
	DeviceID    DeviceID
	Handle      uint32
	Action      NotificationAction
	PhoneNumber *string
	ReplyText   *string
}

// BatteryInfoPayload 电量上报载荷
type BatteryInfoPayload struct {
	DeviceID     DeviceID
	Level        int32
	State        BatteryState
	LastChargeAt *time.Time
	ChargeCycles *int32
}

// FindPhonePayload 找手机载荷
type FindPhonePayload struct {
	DeviceID DeviceID
	Phase    FindPhonePhase
}

// DisplayMessagePayload 设备要求宿主展示的消息
type DisplayMessagePayload struct {
	DeviceID   DeviceID
	Text       string
	Severity   string
	DurationMs *int32
}

// SendBytesPayload 需要原样回写给设备的字节（协议层产生的应答）
type SendBytesPayload struct {
	DeviceID DeviceID
	Kind     uint16
	Data     []byte
}

// AppMessageValue 应用消息键值对的值。
// 实际类型为 int32 / uint32 / string / []byte 之一。
type AppMessageValue = interface{}

// AppMessagePair 应用消息中的一个键值对
type AppMessagePair struct {
	Key   uint32
	Value AppMessageValue
}

// AppMessagePayload 解码后的应用键值消息，转交宿主应用层
type AppMessagePayload struct {
	DeviceID DeviceID
	AppUUID  uuid.UUID
	Pairs    []AppMessagePair
}

// EventType 规范化设备事件类型
type EventType string

const (
	EventVersionInfo         EventType = "VersionInfo"
	EventAppInfo             EventType = "AppInfo"
	EventSleepMonitorResult  EventType = "SleepMonitorResult"
	EventNotificationControl EventType = "NotificationControl"
	EventBatteryInfo         EventType = "BatteryInfo"
	EventFindPhone           EventType = "FindPhone"
	EventDisplayMessage      EventType = "DisplayMessage"
	EventSendBytes           EventType = "SendBytes"
	EventAppMessage          EventType = "AppMessage"
)

// DeviceEvent 设备 -> 宿主 的标准事件。
// 封闭联合：Type 决定哪个载荷指针非 nil，其余必须为 nil。
type DeviceEvent struct {
	Type                EventType
	DeviceID            DeviceID
	OccurredAt          time.Time
	VersionInfo         *VersionInfoPayload
	AppInfo             *AppInfoPayload
	SleepMonitor        *SleepMonitorPayload
	NotificationControl *NotificationControlPayload
	BatteryInfo         *BatteryInfoPayload
	FindPhone           *FindPhonePayload
	DisplayMessage      *DisplayMessagePayload
	SendBytes           *SendBytesPayload
	AppMessage          *AppMessagePayload
}
