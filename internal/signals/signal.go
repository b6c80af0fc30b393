package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// Type 宿主信号类型
type Type string

const (
	// SignalDeviceInfoChanged 设备信息（版本/电量等）发生变化
	SignalDeviceInfoChanged Type = "device.info_changed"

	// SignalAppListChanged 设备应用清单发生变化
	SignalAppListChanged Type = "device.applist_changed"

	// SignalSleepDataReady 新的睡眠监测结果可用
	SignalSleepDataReady Type = "device.sleep_data_ready"

	// SignalBatteryLowRaised 低电量提醒置位
	SignalBatteryLowRaised Type = "device.battery_low_raised"

	// SignalBatteryLowCleared 低电量提醒解除
	SignalBatteryLowCleared Type = "device.battery_low_cleared"

	// SignalNotificationDismiss 手表侧要求关闭单条通知
	SignalNotificationDismiss Type = "notification.dismiss"

	// SignalNotificationDismissAll 手表侧要求关闭全部通知
	SignalNotificationDismissAll Type = "notification.dismiss_all"

	// SignalNotificationOpen 手表侧要求在宿主打开通知
	SignalNotificationOpen Type = "notification.open"

	// SignalNotificationMute 手表侧要求静音通知来源
	SignalNotificationMute Type = "notification.mute"

	// SignalNotificationReply 无法直接投递的回复，交宿主兜底处理
	SignalNotificationReply Type = "notification.reply"

	// SignalReplyDelivered 回复已投递
	SignalReplyDelivered Type = "reply.delivered"

	// SignalReplyFailed 回复投递失败
	SignalReplyFailed Type = "reply.failed"

	// SignalFindPhoneStart 找手机开始，宿主应发声/亮屏
	SignalFindPhoneStart Type = "findphone.start"

	// SignalPhoneFound 找手机结束
	SignalPhoneFound Type = "phone.found"

	// SignalDisplayMessage 设备要求宿主展示消息
	SignalDisplayMessage Type = "display.message"

	// SignalAppMessageReceived 未注册应用的键值消息透传
	SignalAppMessageReceived Type = "appmessage.received"
)

// Signal 标准信号结构
type Signal struct {
	// 基础字段
	SignalID  string `json:"signal_id"` // 信号唯一ID（用于去重）
	Type      Type   `json:"type"`      // 信号类型
	DeviceID  string `json:"device_id"` // 设备标识
	Timestamp int64  `json:"timestamp"` // 信号时间戳（Unix秒）
	Nonce     string `json:"nonce"`     // 随机数（用于签名）

	// 业务数据
	Data map[string]interface{} `json:"data"` // 具体信号数据
}

// New 创建标准信号
func New(t Type, deviceID coremodel.DeviceID, data map[string]interface{}) *Signal {
	now := time.Now()
	return &Signal{
		SignalID:  fmt.Sprintf("%s-%s-%d", t, deviceID, now.UnixNano()),
		Type:      t,
		DeviceID:  string(deviceID),
		Timestamp: now.Unix(),
		Nonce:     fmt.Sprintf("%08x", uint32(now.UnixNano())),
		Data:      data,
	}
}

// Publisher 信号发布接口。发布是 fire-and-forget 语义：
// 实现自行处理重试与降级，失败不得反压回事件处理循环。
type Publisher interface {
	Publish(ctx context.Context, sig *Signal) error
}
