package outbound

import (
	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
	"github.com/taoyao-code/wearable-server/internal/protocol/datalog"
	"github.com/taoyao-code/wearable-server/internal/protocol/watch"
)

// 下行消息优先级定义
// 注意: 数值越小=优先级越高
const (
	// PriorityEmergency 紧急消息（立即发送）
	// 场景: 数据日志ACK/NACK，不及时回执设备会重传
	PriorityEmergency = 1

	// PriorityHigh 高优先级消息
	// 场景: 通知操作回执、找手机应答
	PriorityHigh = 2

	// PriorityNormal 普通优先级消息
	// 场景: 应用启动、键值下发
	PriorityNormal = 3

	// PriorityLow 低优先级消息
	// 场景: 天气推送等周期性内容
	PriorityLow = 4

	// PriorityBackground 后台任务
	// 场景: 清单同步、统计查询
	PriorityBackground = 5
)

// KindPriority 根据消息大类返回默认优先级
func KindPriority(kind uint16) int {
	switch kind {
	case datalog.KindDatalog:
		return PriorityEmergency

	case watch.KindNotificationControl, watch.KindFindPhone:
		return PriorityHigh

	case appmsg.KindAppMessage:
		return PriorityNormal

	case watch.KindAppInfo:
		return PriorityBackground

	default:
		return PriorityNormal
	}
}
